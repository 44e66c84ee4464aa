package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/timmy/predictboard/internal/domain"
	"github.com/timmy/predictboard/internal/executor"
	"github.com/timmy/predictboard/internal/logger"
	"github.com/timmy/predictboard/internal/repository"
	"github.com/timmy/predictboard/internal/storage"
)

// ErrResultUnavailable is returned when a record has no downloadable output.
var ErrResultUnavailable = errors.New("query result is not available")

// Runner executes one statement against Athena.
type Runner interface {
	Run(ctx context.Context, job domain.QueryJob) (*executor.Execution, error)
}

// RecordStore persists query history.
type RecordStore interface {
	Create(ctx context.Context, rec *domain.QueryRecord) error
	Finish(ctx context.Context, id string, update repository.FinishUpdate) error
	GetByID(ctx context.Context, id string) (*domain.QueryRecord, error)
	GetByExecutionID(ctx context.Context, executionID string) (*domain.QueryRecord, error)
	ListRecent(ctx context.Context, purpose domain.QueryPurpose, limit int) ([]domain.QueryRecord, error)
}

// QueryConfig holds result cache settings.
type QueryConfig struct {
	// CacheTTL of zero disables caching.
	CacheTTL  time.Duration
	CacheSize int
}

// QueryResult is a table plus where it came from.
type QueryResult struct {
	Table       *domain.ResultTable
	ExecutionID string
	RecordID    string
	Cached      bool
	Shared      bool
}

// QueryService runs statements with result caching and history recording.
type QueryService struct {
	runner  Runner
	records RecordStore
	store   storage.ResultStore
	logger  *logger.Logger
	cache   *expirable.LRU[string, *domain.ResultTable]
	group   singleflight.Group
}

// NewQueryService creates a new query service.
// Parameters:
//   - runner: query executor.
//   - records: history store; nil disables recording.
//   - store: result object reader; nil disables CSV downloads.
//   - log: logger instance.
//   - cfg: cache settings.
//
// Returns:
//   - *QueryService: initialized service.
func NewQueryService(runner Runner, records RecordStore, store storage.ResultStore, log *logger.Logger, cfg *QueryConfig) *QueryService {
	s := &QueryService{
		runner:  runner,
		records: records,
		store:   store,
		logger:  log,
	}
	if cfg != nil && cfg.CacheTTL > 0 {
		size := cfg.CacheSize
		if size <= 0 {
			size = 256
		}
		s.cache = expirable.NewLRU[string, *domain.ResultTable](size, nil, cfg.CacheTTL)
	}
	return s
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *QueryService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Run executes job, serving repeated identical jobs from the cache within the TTL.
// Concurrent identical jobs share a single execution.
// Parameters:
//   - ctx: request context; cancelling it stops the Athena query.
//   - purpose: history label.
//   - job: statement and target.
// Returns:
//   - *QueryResult: table, possibly empty, with provenance.
//   - error: executor errors; failures are never cached.
func (s *QueryService) Run(ctx context.Context, purpose domain.QueryPurpose, job domain.QueryJob) (*QueryResult, error) {
	key := job.CacheKey()
	if s.cache != nil {
		if table, ok := s.cache.Get(key); ok {
			logger.With(logger.Fields{
				logger.FieldCacheHit: true,
				logger.FieldPurpose:  string(purpose),
				logger.FieldCount:    table.Len(),
			}).Debug(ctx, "Query served from cache")
			return &QueryResult{Table: table, Cached: true}, nil
		}
	}

	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.execute(ctx, purpose, job)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*QueryResult)
	res.Shared = shared
	return &res, nil
}

func (s *QueryService) execute(ctx context.Context, purpose domain.QueryPurpose, job domain.QueryJob) (*QueryResult, error) {
	rec := &domain.QueryRecord{
		Purpose:   purpose,
		Statement: job.Statement,
		Database:  job.Database,
	}
	recorded := false
	if s.records != nil {
		if err := s.records.Create(ctx, rec); err != nil {
			s.log(ctx).WithError(err).Warn("Failed to record query start")
		} else {
			recorded = true
		}
	}

	exec, err := s.runner.Run(ctx, job)

	if recorded {
		s.finishRecord(ctx, rec.ID, exec, err)
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Add(job.CacheKey(), exec.Table)
	}
	return &QueryResult{Table: exec.Table, ExecutionID: exec.ID, RecordID: rec.ID}, nil
}

func (s *QueryService) finishRecord(ctx context.Context, id string, exec *executor.Execution, runErr error) {
	update := repository.FinishUpdate{Status: domain.JobStatusSucceeded}
	if exec != nil {
		update.ExecutionID = exec.ID
		update.OutputURI = exec.OutputURI
		update.Status = exec.Status
		update.Reason = exec.Reason
		update.DurationMs = exec.Elapsed.Milliseconds()
		if exec.Table != nil {
			update.RowCount = exec.Table.Len()
		}
	}
	if runErr != nil {
		if update.Status == domain.JobStatusSucceeded || !update.Status.IsTerminal() {
			update.Status = domain.JobStatusFailed
		}
		if update.Reason == "" {
			update.Reason = runErr.Error()
		}
	}

	// The request may already be cancelled; history is still written.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.records.Finish(writeCtx, id, update); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to record query outcome")
	}
}

// ExecutorFor adapts the service to a plain Execute call under one purpose.
func (s *QueryService) ExecutorFor(purpose domain.QueryPurpose) *PurposeExecutor {
	return &PurposeExecutor{service: s, purpose: purpose}
}

// PurposeExecutor runs jobs through a QueryService with a fixed history label.
type PurposeExecutor struct {
	service *QueryService
	purpose domain.QueryPurpose
}

// Execute runs job and returns only its table.
func (p *PurposeExecutor) Execute(ctx context.Context, job domain.QueryJob) (*domain.ResultTable, error) {
	res, err := p.service.Run(ctx, p.purpose, job)
	if err != nil {
		return nil, err
	}
	return res.Table, nil
}

// History lists recent query records.
func (s *QueryService) History(ctx context.Context, purpose domain.QueryPurpose, limit int) ([]domain.QueryRecord, error) {
	if s.records == nil {
		return nil, nil
	}
	return s.records.ListRecent(ctx, purpose, limit)
}

// Record returns one history record, looked up by record ID or by Athena execution ID.
func (s *QueryService) Record(ctx context.Context, id string) (*domain.QueryRecord, error) {
	if s.records == nil {
		return nil, repository.ErrRecordNotFound
	}
	rec, err := s.records.GetByID(ctx, id)
	if errors.Is(err, repository.ErrRecordNotFound) && id != "" {
		return s.records.GetByExecutionID(ctx, id)
	}
	return rec, err
}

// ResultCSV opens the CSV Athena wrote for a successful record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: history record ID.
// Returns:
//   - io.ReadCloser: CSV body; the caller closes it.
//   - error: repository.ErrRecordNotFound, ErrResultUnavailable, storage.ErrObjectNotFound
//     when the output has expired, or a storage error.
func (s *QueryService) ResultCSV(ctx context.Context, id string) (io.ReadCloser, error) {
	rec, err := s.Record(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.store == nil || rec.Status != domain.JobStatusSucceeded || rec.OutputURI == "" {
		return nil, ErrResultUnavailable
	}
	exists, err := s.store.Exists(ctx, rec.OutputURI)
	if err != nil {
		return nil, fmt.Errorf("failed to check result of %s: %w", rec.ExecutionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, rec.OutputURI)
	}
	body, err := s.store.Download(ctx, rec.OutputURI)
	if err != nil {
		return nil, fmt.Errorf("failed to read result of %s: %w", rec.ExecutionID, err)
	}
	return body, nil
}
