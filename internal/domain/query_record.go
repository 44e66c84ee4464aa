package domain

import "time"

// QueryPurpose tags why a statement was run.
type QueryPurpose string

const (
	QueryPurposeDiscovery QueryPurpose = "discovery"
	QueryPurposeSeries    QueryPurpose = "series"
	QueryPurposeBrowse    QueryPurpose = "browse"
)

// QueryRecord is the persisted history entry of one executed statement.
// Cache hits never produce a record.
type QueryRecord struct {
	ID          string       `gorm:"type:text;primaryKey" json:"id"`
	ExecutionID string       `gorm:"type:text;index:idx_query_records_execution" json:"execution_id,omitempty"`
	Purpose     QueryPurpose `gorm:"type:text;index:idx_query_records_purpose" json:"purpose"`
	Statement   string       `gorm:"type:text;not null" json:"statement"`
	Database    string       `gorm:"type:text" json:"database"`
	OutputURI   string       `gorm:"type:text" json:"output_uri,omitempty"`
	Status      JobStatus    `gorm:"type:text;index:idx_query_records_status;default:RUNNING" json:"status"`
	Reason      string       `gorm:"type:text" json:"reason,omitempty"`
	RowCount    int          `gorm:"default:0" json:"row_count"`
	DurationMs  int64        `gorm:"default:0" json:"duration_ms"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TableName returns the database table name for QueryRecord.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (QueryRecord) TableName() string {
	return "query_records"
}
