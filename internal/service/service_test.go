package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/predictboard/internal/domain"
	"github.com/timmy/predictboard/internal/executor"
	"github.com/timmy/predictboard/internal/logger"
	"github.com/timmy/predictboard/internal/repository"
	"github.com/timmy/predictboard/internal/series"
	"github.com/timmy/predictboard/internal/storage"
)

type fakeRunner struct {
	calls   atomic.Int32
	mu      sync.Mutex
	jobs    []domain.QueryJob
	respond func(job domain.QueryJob) (*executor.Execution, error)
}

func (f *fakeRunner) Run(_ context.Context, job domain.QueryJob) (*executor.Execution, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()
	return f.respond(job)
}

func succeed(table *domain.ResultTable) func(domain.QueryJob) (*executor.Execution, error) {
	return func(domain.QueryJob) (*executor.Execution, error) {
		return &executor.Execution{
			ID:        "exec-1",
			Status:    domain.JobStatusSucceeded,
			OutputURI: "s3://results/exec-1.csv",
			Table:     table,
			Elapsed:   1200 * time.Millisecond,
		}, nil
	}
}

type memRecords struct {
	mu   sync.Mutex
	recs map[string]*domain.QueryRecord
	seq  int
}

func newMemRecords() *memRecords {
	return &memRecords{recs: make(map[string]*domain.QueryRecord)}
}

func (m *memRecords) Create(_ context.Context, rec *domain.QueryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	rec.ID = strings.Repeat("r", m.seq)
	rec.Status = domain.JobStatusRunning
	cp := *rec
	m.recs[rec.ID] = &cp
	return nil
}

func (m *memRecords) Finish(_ context.Context, id string, u repository.FinishUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return repository.ErrRecordNotFound
	}
	rec.ExecutionID = u.ExecutionID
	rec.OutputURI = u.OutputURI
	rec.Status = u.Status
	rec.Reason = u.Reason
	rec.RowCount = u.RowCount
	rec.DurationMs = u.DurationMs
	return nil
}

func (m *memRecords) GetByID(_ context.Context, id string) (*domain.QueryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memRecords) GetByExecutionID(_ context.Context, executionID string) (*domain.QueryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.recs {
		if rec.ExecutionID == executionID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

func (m *memRecords) ListRecent(_ context.Context, purpose domain.QueryPurpose, limit int) ([]domain.QueryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.QueryRecord
	for _, rec := range m.recs {
		if purpose == "" || rec.Purpose == purpose {
			out = append(out, *rec)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memStore struct {
	objects map[string]string
}

func (m *memStore) Download(_ context.Context, uri string) (io.ReadCloser, error) {
	body, ok := m.objects[uri]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (m *memStore) Exists(_ context.Context, uri string) (bool, error) {
	_, ok := m.objects[uri]
	return ok, nil
}

func cells(values ...string) []null.String {
	out := make([]null.String, len(values))
	for i, v := range values {
		out[i] = null.StringFrom(v)
	}
	return out
}

func twoColumnTable() *domain.ResultTable {
	return &domain.ResultTable{
		Columns: []string{"date", "price"},
		Rows:    [][]null.String{cells("2024-06-27", "14.02")},
	}
}

var testJob = domain.QueryJob{Statement: "SELECT 1", Database: "markets", OutputLocation: "s3://results/"}

func TestRunCachesSuccess(t *testing.T) {
	runner := &fakeRunner{respond: succeed(twoColumnTable())}
	svc := NewQueryService(runner, nil, nil, logger.GetDefault(), &QueryConfig{CacheTTL: time.Minute})

	first, err := svc.Run(context.Background(), domain.QueryPurposeBrowse, testJob)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Run(context.Background(), domain.QueryPurposeBrowse, testJob)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Table, second.Table)
	assert.Equal(t, int32(1), runner.calls.Load())

	other := testJob
	other.Statement = "SELECT 2"
	_, err = svc.Run(context.Background(), domain.QueryPurposeBrowse, other)
	require.NoError(t, err)
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestRunZeroTTLDisablesCache(t *testing.T) {
	runner := &fakeRunner{respond: succeed(twoColumnTable())}
	svc := NewQueryService(runner, nil, nil, logger.GetDefault(), &QueryConfig{CacheTTL: 0})

	for i := 0; i < 3; i++ {
		res, err := svc.Run(context.Background(), domain.QueryPurposeBrowse, testJob)
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	assert.Equal(t, int32(3), runner.calls.Load())
}

func TestRunDoesNotCacheFailures(t *testing.T) {
	fail := true
	runner := &fakeRunner{}
	runner.respond = func(job domain.QueryJob) (*executor.Execution, error) {
		if fail {
			return &executor.Execution{ID: "exec-f", Status: domain.JobStatusFailed, Reason: "INSUFFICIENT_PERMISSIONS"},
				&executor.QueryExecutionError{ExecutionID: "exec-f", State: domain.JobStatusFailed, Reason: "INSUFFICIENT_PERMISSIONS"}
		}
		return succeed(twoColumnTable())(job)
	}
	svc := NewQueryService(runner, nil, nil, logger.GetDefault(), &QueryConfig{CacheTTL: time.Minute})

	_, err := svc.Run(context.Background(), domain.QueryPurposeBrowse, testJob)
	qe, ok := executor.IsQueryExecutionError(err)
	require.True(t, ok)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", qe.Reason)

	fail = false
	res, err := svc.Run(context.Background(), domain.QueryPurposeBrowse, testJob)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestRunCollapsesConcurrentIdenticalJobs(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	runner := &fakeRunner{}
	runner.respond = func(job domain.QueryJob) (*executor.Execution, error) {
		started <- struct{}{}
		<-release
		return succeed(twoColumnTable())(job)
	}
	svc := NewQueryService(runner, nil, nil, logger.GetDefault(), &QueryConfig{CacheTTL: time.Minute})

	var wg sync.WaitGroup
	results := make([]*QueryResult, 4)
	run := func(i int) {
		defer wg.Done()
		res, err := svc.Run(context.Background(), domain.QueryPurposeBrowse, testJob)
		assert.NoError(t, err)
		results[i] = res
	}

	wg.Add(1)
	go run(0)
	<-started
	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go run(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runner.calls.Load())
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, 1, res.Table.Len())
	}
}

func TestRunRecordsHistory(t *testing.T) {
	records := newMemRecords()
	runner := &fakeRunner{respond: succeed(twoColumnTable())}
	svc := NewQueryService(runner, records, nil, logger.GetDefault(), nil)

	res, err := svc.Run(context.Background(), domain.QueryPurposeSeries, testJob)
	require.NoError(t, err)
	require.NotEmpty(t, res.RecordID)

	rec, err := svc.Record(context.Background(), res.RecordID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, rec.Status)
	assert.Equal(t, "exec-1", rec.ExecutionID)
	assert.Equal(t, 1, rec.RowCount)
	assert.Equal(t, int64(1200), rec.DurationMs)
	assert.Equal(t, domain.QueryPurposeSeries, rec.Purpose)

	byExec, err := svc.Record(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, res.RecordID, byExec.ID)

	runner.respond = func(domain.QueryJob) (*executor.Execution, error) {
		return nil, errors.New("throttled")
	}
	_, err = svc.Run(context.Background(), domain.QueryPurposeBrowse, testJob)
	require.Error(t, err)

	failed, err := svc.History(context.Background(), domain.QueryPurposeBrowse, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, domain.JobStatusFailed, failed[0].Status)
	assert.Equal(t, "throttled", failed[0].Reason)
}

func TestRunRecordsMalformedResultAsFailed(t *testing.T) {
	records := newMemRecords()
	runner := &fakeRunner{respond: func(domain.QueryJob) (*executor.Execution, error) {
		return &executor.Execution{ID: "exec-m", Status: domain.JobStatusSucceeded}, executor.ErrMalformedResult
	}}
	svc := NewQueryService(runner, records, nil, logger.GetDefault(), nil)

	_, err := svc.Run(context.Background(), domain.QueryPurposeBrowse, testJob)
	require.ErrorIs(t, err, executor.ErrMalformedResult)

	recs, err := svc.History(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.JobStatusFailed, recs[0].Status)
	assert.Equal(t, "exec-m", recs[0].ExecutionID)
}

func TestResultCSV(t *testing.T) {
	records := newMemRecords()
	store := &memStore{objects: map[string]string{"s3://results/exec-1.csv": "\"date\",\"price\"\n"}}
	runner := &fakeRunner{respond: succeed(twoColumnTable())}
	svc := NewQueryService(runner, records, store, logger.GetDefault(), nil)

	res, err := svc.Run(context.Background(), domain.QueryPurposeBrowse, testJob)
	require.NoError(t, err)

	body, err := svc.ResultCSV(context.Background(), res.RecordID)
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	body.Close()
	assert.Equal(t, "\"date\",\"price\"\n", string(data))

	_, err = svc.ResultCSV(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)

	runner.respond = func(domain.QueryJob) (*executor.Execution, error) {
		return &executor.Execution{ID: "exec-2", Status: domain.JobStatusCancelled}, executor.ErrQueryTimeout
	}
	_, err = svc.Run(context.Background(), domain.QueryPurposeBrowse, domain.QueryJob{Statement: "SELECT 3"})
	require.Error(t, err)
	recs, _ := svc.History(context.Background(), "", 10)
	for _, rec := range recs {
		if rec.ExecutionID == "exec-2" {
			assert.Equal(t, domain.JobStatusCancelled, rec.Status)
			_, err = svc.ResultCSV(context.Background(), rec.ID)
			assert.ErrorIs(t, err, ErrResultUnavailable)
		}
	}
}

func TestResultCSVExpiredOutput(t *testing.T) {
	records := newMemRecords()
	store := &memStore{objects: map[string]string{}}
	svc := NewQueryService(&fakeRunner{respond: succeed(twoColumnTable())}, records, store, logger.GetDefault(), nil)

	res, err := svc.Run(context.Background(), domain.QueryPurposeBrowse, testJob)
	require.NoError(t, err)

	_, err = svc.ResultCSV(context.Background(), res.RecordID)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

type stubLister struct {
	entities []string
	calls    int
}

func (s *stubLister) ListEntities(context.Context, string, string) ([]string, error) {
	s.calls++
	return s.entities, nil
}

type stubCache struct {
	entities []string
	ok       bool
}

func (s stubCache) Entities() ([]string, time.Time, bool) {
	return s.entities, time.Now(), s.ok
}

func newDashboard(runner *fakeRunner, lister EntityLister, cache EntityCache) *DashboardService {
	queries := NewQueryService(runner, nil, nil, logger.GetDefault(), nil)
	assembler := series.NewAssembler(series.Config{
		Database:        "markets",
		Table:           "prices",
		PredictionTable: "predictions",
		ReferenceDate:   time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC),
	})
	return NewDashboardService(queries, lister, cache, assembler, DashboardConfig{
		Database:       "markets",
		OutputLocation: "s3://results/",
		Tables:         []string{"markets.prices", "markets.predictions"},
		MinRows:        10,
		MaxRows:        1000,
		DefaultRows:    100,
		ChartWidth:     400,
		ChartHeight:    200,
		ThumbWidth:     100,
	})
}

func TestListTickersPrefersRefreshedList(t *testing.T) {
	lister := &stubLister{entities: []string{"ABEV3", "PETR4"}}

	dash := newDashboard(&fakeRunner{}, lister, stubCache{entities: []string{"VALE3"}, ok: true})
	got, err := dash.ListTickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"VALE3"}, got)
	assert.Equal(t, 0, lister.calls)

	dash = newDashboard(&fakeRunner{}, lister, stubCache{})
	got, err = dash.ListTickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ABEV3", "PETR4"}, got)
	assert.Equal(t, 1, lister.calls)
}

func seriesTable() *domain.ResultTable {
	return &domain.ResultTable{
		Columns: []string{"date", "price", "tag"},
		Rows: [][]null.String{
			cells("2024-06-28", "14.20", "real"),
			cells("2024-06-27", "14.02", "real"),
			cells("2024-07-01", "14.90", "predicted"),
		},
	}
}

func TestSeriesAndChart(t *testing.T) {
	runner := &fakeRunner{respond: succeed(seriesTable())}
	dash := newDashboard(runner, &stubLister{}, nil)

	res, err := dash.Series(context.Background(), "ABEV3")
	require.NoError(t, err)
	assert.Empty(t, res.Notice)
	require.Len(t, res.Series.Points, 3)
	assert.Equal(t, "14.02", res.Series.Points[0].Price.String())
	assert.Contains(t, runner.jobs[0].Statement, "'ABEV3'")
	assert.Equal(t, "s3://results/", runner.jobs[0].OutputLocation)

	img, contentType, err := dash.Chart(context.Background(), "ABEV3", ChartRequest{})
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.NotEmpty(t, img)

	_, contentType, err = dash.Chart(context.Background(), "ABEV3", ChartRequest{Format: "svg"})
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", contentType)

	_, err = dash.Series(context.Background(), "ABEV3' OR 1=1 --")
	assert.ErrorIs(t, err, series.ErrInvalidEntity)
}

func TestSeriesEmptyResultIsNotice(t *testing.T) {
	runner := &fakeRunner{respond: succeed(&domain.ResultTable{Columns: []string{"date", "price", "tag"}})}
	dash := newDashboard(runner, &stubLister{}, nil)

	res, err := dash.Series(context.Background(), "ABEV3")
	require.NoError(t, err)
	assert.Equal(t, NoRowsNotice, res.Notice)
}

func TestBrowseTable(t *testing.T) {
	runner := &fakeRunner{respond: succeed(twoColumnTable())}
	dash := newDashboard(runner, &stubLister{}, nil)

	res, err := dash.BrowseTable(context.Background(), "markets.prices", 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "markets"."prices" LIMIT 100`, res.Statement)
	assert.Empty(t, res.Notice)

	tests := []struct {
		name    string
		table   string
		limit   int
		wantErr error
	}{
		{"unknown table", "markets.secrets", 100, ErrTableNotAllowed},
		{"below minimum", "markets.prices", 5, ErrLimitOutOfRange},
		{"above maximum", "markets.prices", 1001, ErrLimitOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dash.BrowseTable(context.Background(), tt.table, tt.limit)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	runner.respond = succeed(&domain.ResultTable{Columns: []string{"date", "price"}})
	empty, err := dash.BrowseTable(context.Background(), "markets.predictions", 10)
	require.NoError(t, err)
	assert.Equal(t, NoRowsNotice, empty.Notice)

	lo, hi, def := dash.RowLimits()
	assert.Equal(t, []int{10, 1000, 100}, []int{lo, hi, def})
}
