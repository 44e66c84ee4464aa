// Package executor runs SQL statements on Amazon Athena: submit, poll until a
// terminal state, then page through the results into a domain.ResultTable.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/guregu/null/v6"

	"github.com/timmy/predictboard/internal/domain"
	"github.com/timmy/predictboard/internal/logger"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPageSize     = 1000
	stopTimeout         = 5 * time.Second
)

var errStillRunning = errors.New("query still running")

// API is the subset of the Athena client the executor uses.
type API interface {
	athena.GetQueryResultsAPIClient
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	StopQueryExecution(ctx context.Context, params *athena.StopQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error)
}

// Config holds executor tuning.
type Config struct {
	PollInterval time.Duration
	MaxWait      time.Duration // zero waits forever
	PageSize     int32
}

// Executor submits statements and materializes their results.
type Executor struct {
	api          API
	pollInterval time.Duration
	maxWait      time.Duration
	pageSize     int32
}

// Execution describes one submitted query. Table is set only on success.
type Execution struct {
	ID        string
	Status    domain.JobStatus
	Reason    string
	OutputURI string
	Table     *domain.ResultTable
	Elapsed   time.Duration
}

// New creates an Executor.
// Parameters:
//   - api: Athena client (or a fake in tests).
//   - cfg: polling and paging settings; nil uses a 2s interval, no max wait, 1000-row pages.
// Returns:
//   - *Executor: ready executor.
func New(api API, cfg *Config) *Executor {
	e := &Executor{
		api:          api,
		pollInterval: defaultPollInterval,
		pageSize:     defaultPageSize,
	}
	if cfg != nil {
		if cfg.PollInterval > 0 {
			e.pollInterval = cfg.PollInterval
		}
		if cfg.PageSize > 0 && cfg.PageSize <= defaultPageSize {
			e.pageSize = cfg.PageSize
		}
		e.maxWait = cfg.MaxWait
	}
	return e
}

// Execute runs job and returns its result table.
func (e *Executor) Execute(ctx context.Context, job domain.QueryJob) (*domain.ResultTable, error) {
	exec, err := e.Run(ctx, job)
	if err != nil {
		return nil, err
	}
	return exec.Table, nil
}

// Run runs job and reports the execution. Once the statement has been
// submitted the returned Execution is non-nil, even alongside an error, so
// callers can record the execution ID.
func (e *Executor) Run(ctx context.Context, job domain.QueryJob) (*Execution, error) {
	start := time.Now()

	input := &athena.StartQueryExecutionInput{
		QueryString:        aws.String(job.Statement),
		ClientRequestToken: aws.String(uuid.NewString()),
		ResultConfiguration: &types.ResultConfiguration{
			OutputLocation: aws.String(job.OutputLocation),
		},
	}
	if job.Database != "" {
		input.QueryExecutionContext = &types.QueryExecutionContext{Database: aws.String(job.Database)}
	}
	if job.WorkGroup != "" {
		input.WorkGroup = aws.String(job.WorkGroup)
	}

	started, err := e.api.StartQueryExecution(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to start query: %w", err)
	}
	id := aws.ToString(started.QueryExecutionId)
	ctx = logger.SetExecutionID(ctx, id)
	logger.CtxDebug(ctx, "Query submitted: database=%s", job.Database)

	exec := &Execution{ID: id, Status: domain.JobStatusQueued}

	final, err := e.waitForTerminal(ctx, id)
	exec.Elapsed = time.Since(start)
	if err != nil {
		exec.Status = domain.JobStatusFailed
		if errors.Is(err, ErrQueryTimeout) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			exec.Status = domain.JobStatusCancelled
		}
		exec.Reason = err.Error()
		return exec, err
	}

	exec.Status = domain.ParseJobStatus(string(final.Status.State))
	if final.ResultConfiguration != nil {
		exec.OutputURI = aws.ToString(final.ResultConfiguration.OutputLocation)
	}

	if exec.Status != domain.JobStatusSucceeded {
		exec.Reason = failureReason(final.Status)
		logger.With(logger.Fields{}).
			WithDuration(exec.Elapsed.Milliseconds()).
			WithStatus(string(exec.Status)).
			Warn(ctx, "Query did not succeed: reason=%s", exec.Reason)
		return exec, &QueryExecutionError{ExecutionID: id, State: exec.Status, Reason: exec.Reason}
	}

	table, err := e.fetchResults(ctx, id)
	exec.Elapsed = time.Since(start)
	if err != nil {
		return exec, err
	}
	exec.Table = table

	logger.With(logger.Fields{}).
		WithDuration(exec.Elapsed.Milliseconds()).
		WithCount(table.Len()).
		WithStatus(string(exec.Status)).
		Info(ctx, "Query succeeded")

	return exec, nil
}

// waitForTerminal polls at a fixed interval until the execution leaves QUEUED/RUNNING.
func (e *Executor) waitForTerminal(ctx context.Context, id string) (*types.QueryExecution, error) {
	pollCtx := ctx
	if e.maxWait > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, e.maxWait)
		defer cancel()
	}

	var final *types.QueryExecution
	poll := func() error {
		out, err := e.api.GetQueryExecution(pollCtx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(id),
		})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to get query status: %w", err))
		}
		if out.QueryExecution == nil || out.QueryExecution.Status == nil {
			return errStillRunning
		}
		if !domain.ParseJobStatus(string(out.QueryExecution.Status.State)).IsTerminal() {
			return errStillRunning
		}
		final = out.QueryExecution
		return nil
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(e.pollInterval), pollCtx)
	err := backoff.RetryNotify(poll, b, func(_ error, next time.Duration) {
		logger.CtxDebug(ctx, "Query still running, next check in %s", next)
	})
	if err == nil {
		return final, nil
	}

	switch {
	case ctx.Err() != nil:
		e.stop(ctx, id)
		return nil, ctx.Err()
	case pollCtx.Err() != nil:
		e.stop(ctx, id)
		return nil, fmt.Errorf("query %s: %w", id, ErrQueryTimeout)
	default:
		return nil, err
	}
}

// stop cancels the remote query. Failures are only logged.
func (e *Executor) stop(ctx context.Context, id string) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	if _, err := e.api.StopQueryExecution(stopCtx, &athena.StopQueryExecutionInput{
		QueryExecutionId: aws.String(id),
	}); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to stop query")
		return
	}
	logger.CtxInfo(ctx, "Query stopped")
}

// fetchResults pages through the result set. The first row is the header.
func (e *Executor) fetchResults(ctx context.Context, id string) (*domain.ResultTable, error) {
	pages := athena.NewGetQueryResultsPaginator(e.api, &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(id),
	}, func(o *athena.GetQueryResultsPaginatorOptions) {
		o.Limit = e.pageSize
	})

	var rows [][]null.String
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch query results: %w", err)
		}
		if page.ResultSet == nil {
			continue
		}
		for _, r := range page.ResultSet.Rows {
			cells := make([]null.String, len(r.Data))
			for i, d := range r.Data {
				cells[i] = null.StringFromPtr(d.VarCharValue)
			}
			rows = append(rows, cells)
		}
	}

	return buildTable(rows)
}

// buildTable splits the header from the data and checks row widths.
func buildTable(rows [][]null.String) (*domain.ResultTable, error) {
	table := &domain.ResultTable{Columns: []string{}, Rows: [][]null.String{}}
	if len(rows) == 0 {
		return table, nil
	}

	for _, cell := range rows[0] {
		table.Columns = append(table.Columns, cell.ValueOrZero())
	}
	for i, row := range rows[1:] {
		if len(row) != len(table.Columns) {
			return nil, fmt.Errorf("%w: row %d has %d cells, header has %d",
				ErrMalformedResult, i+1, len(row), len(table.Columns))
		}
	}
	table.Rows = rows[1:]
	return table, nil
}

func failureReason(status *types.QueryExecutionStatus) string {
	if status == nil {
		return UnknownReason
	}
	if r := aws.ToString(status.StateChangeReason); r != "" {
		return r
	}
	if status.AthenaError != nil {
		if msg := aws.ToString(status.AthenaError.ErrorMessage); msg != "" {
			return msg
		}
	}
	return UnknownReason
}
