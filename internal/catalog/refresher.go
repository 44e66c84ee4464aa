package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/timmy/predictboard/internal/logger"
)

// DefaultRefreshTimeout bounds a background refresh when no schedule sets the interval.
const DefaultRefreshTimeout = 5 * time.Minute

// Lister is anything that can enumerate entities.
type Lister interface {
	ListEntities(ctx context.Context, database, outputLocation string) ([]string, error)
}

// Refresher keeps the last discovered entity list and re-runs discovery on a cron schedule.
// Background refreshes never overlap, each is bounded by the schedule interval,
// and all of them are cancelled by Stop.
type Refresher struct {
	lister         Lister
	database       string
	outputLocation string
	cron           *cron.Cron

	// ctx is cancelled by Stop; every background refresh derives from it.
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	wg      sync.WaitGroup

	mu        sync.RWMutex
	entities  []string
	refreshed time.Time
}

// NewRefresher creates a refresher for one database.
func NewRefresher(lister Lister, database, outputLocation string) *Refresher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Refresher{
		lister:         lister,
		database:       database,
		outputLocation: outputLocation,
		cron:           cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:            ctx,
		cancel:         cancel,
		timeout:        DefaultRefreshTimeout,
	}
}

// Start schedules periodic refreshes. An empty schedule disables them.
// Each run times out after one schedule interval.
func (r *Refresher) Start(schedule string) error {
	if schedule == "" {
		return nil
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return err
	}
	first := sched.Next(time.Now())
	if interval := sched.Next(first).Sub(first); interval > 0 {
		r.timeout = interval
	}
	if _, err := r.cron.AddFunc(schedule, r.refreshBounded); err != nil {
		return err
	}
	r.cron.Start()
	logger.Info("Catalog refresher started: schedule=%s timeout=%s", schedule, r.timeout)
	return nil
}

// Prime starts one refresh in the background, bounded like scheduled runs.
func (r *Refresher) Prime() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.refreshBounded()
	}()
}

func (r *Refresher) refreshBounded() {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()
	ctx = logger.SetComponent(ctx, "catalog")
	if _, err := r.Refresh(ctx); err != nil {
		logger.CtxWarn(ctx, "Background catalog refresh failed: %v", err)
	}
}

// Stop cancels running refreshes, halts the scheduler and waits for them to return.
func (r *Refresher) Stop() {
	r.cancel()
	<-r.cron.Stop().Done()
	r.wg.Wait()
}

// Refresh runs discovery now and stores the result on success.
func (r *Refresher) Refresh(ctx context.Context) ([]string, error) {
	start := time.Now()
	entities, err := r.lister.ListEntities(logger.SetComponent(ctx, "catalog"), r.database, r.outputLocation)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.entities = entities
	r.refreshed = time.Now()
	r.mu.Unlock()

	logger.With(logger.Fields{}).
		WithDuration(time.Since(start).Milliseconds()).
		WithCount(len(entities)).
		Info(ctx, "Catalog refreshed")
	return entities, nil
}

// Entities returns the cached list and whether a refresh has ever succeeded.
func (r *Refresher) Entities() ([]string, time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.refreshed.IsZero() {
		return nil, time.Time{}, false
	}
	out := make([]string, len(r.entities))
	copy(out, r.entities)
	return out, r.refreshed, true
}
