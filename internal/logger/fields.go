package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, carried on the context through the call chain.
const (
	FieldRequestID   = "request_id"
	FieldComponent   = "component"
	FieldExecutionID = "query_execution_id"
	FieldTicker      = "ticker"
	FieldPurpose     = "purpose"
)

// Metric fields, attached per log line through Entry.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldStatus     = "status"
	FieldCacheHit   = "cache_hit"
	FieldSize       = "size"
)
