package domain

import "strings"

// JobStatus represents the state of one query execution.
// Values include JobStatusRunning, JobStatusSucceeded, JobStatusFailed, and JobStatusCancelled.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// ParseJobStatus maps a service state string onto a JobStatus.
// Unknown values are reported as running so the caller keeps polling.
func ParseJobStatus(s string) JobStatus {
	switch JobStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case JobStatusQueued:
		return JobStatusQueued
	case JobStatusSucceeded:
		return JobStatusSucceeded
	case JobStatusFailed:
		return JobStatusFailed
	case JobStatusCancelled:
		return JobStatusCancelled
	default:
		return JobStatusRunning
	}
}

// IsTerminal reports whether polling can stop.
// Parameters: none.
// Returns:
//   - bool: true for SUCCEEDED, FAILED and CANCELLED.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// QueryJob is one statement submission. It lives only for the duration of an execution.
type QueryJob struct {
	Statement      string
	Database       string
	OutputLocation string
	WorkGroup      string
}

// CacheKey identifies jobs that produce the same result.
func (j QueryJob) CacheKey() string {
	return j.Database + "\x00" + j.OutputLocation + "\x00" + j.WorkGroup + "\x00" + j.Statement
}
