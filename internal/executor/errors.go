package executor

import (
	"errors"
	"fmt"

	"github.com/timmy/predictboard/internal/domain"
)

// UnknownReason is reported when the service gives no reason for a failure.
const UnknownReason = "Unknown"

var (
	// ErrQueryTimeout is returned when a query outlives the configured maximum wait.
	ErrQueryTimeout = errors.New("query did not finish within the maximum wait")

	// ErrMalformedResult is returned when a result row does not match the header width.
	ErrMalformedResult = errors.New("malformed query result")
)

// QueryExecutionError reports a query that reached FAILED or CANCELLED.
type QueryExecutionError struct {
	ExecutionID string
	State       domain.JobStatus
	Reason      string
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query %s %s: %s", e.ExecutionID, e.State, e.Reason)
}

// IsQueryExecutionError reports whether err wraps a QueryExecutionError and returns it.
func IsQueryExecutionError(err error) (*QueryExecutionError, bool) {
	var qe *QueryExecutionError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
