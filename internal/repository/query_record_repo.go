package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/timmy/predictboard/internal/domain"
)

// ErrRecordNotFound is returned when no query record matches.
var ErrRecordNotFound = errors.New("query record not found")

// QueryRecordRepository persists the history of executed statements.
type QueryRecordRepository struct {
	db *gorm.DB
}

// NewQueryRecordRepository creates a new QueryRecordRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *QueryRecordRepository: repository instance bound to db.
func NewQueryRecordRepository(db *gorm.DB) *QueryRecordRepository {
	return &QueryRecordRepository{db: db}
}

// Create inserts a record, assigning an ID and start time when missing.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *QueryRecordRepository) Create(ctx context.Context, rec *domain.QueryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	if rec.Status == "" {
		rec.Status = domain.JobStatusRunning
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

// FinishUpdate is the outcome written when a statement completes.
type FinishUpdate struct {
	ExecutionID string
	OutputURI   string
	Status      domain.JobStatus
	Reason      string
	RowCount    int
	DurationMs  int64
}

// Finish stores the outcome of a record and stamps its completion time.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID returned by Create.
//   - update: terminal outcome.
// Returns:
//   - error: ErrRecordNotFound if id is unknown, or a database error.
func (r *QueryRecordRepository) Finish(ctx context.Context, id string, update FinishUpdate) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&domain.QueryRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"execution_id": update.ExecutionID,
			"output_uri":   update.OutputURI,
			"status":       update.Status,
			"reason":       update.Reason,
			"row_count":    update.RowCount,
			"duration_ms":  update.DurationMs,
			"completed_at": &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// GetByID retrieves a record by its ID.
func (r *QueryRecordRepository) GetByID(ctx context.Context, id string) (*domain.QueryRecord, error) {
	var rec domain.QueryRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

// GetByExecutionID retrieves the record of an Athena execution.
func (r *QueryRecordRepository) GetByExecutionID(ctx context.Context, executionID string) (*domain.QueryRecord, error) {
	var rec domain.QueryRecord
	if err := r.db.WithContext(ctx).First(&rec, "execution_id = ?", executionID).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

// ListRecent returns the newest records first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - purpose: optional filter; empty lists every purpose.
//   - limit: maximum number of records.
// Returns:
//   - []domain.QueryRecord: records ordered by start time descending.
//   - error: non-nil if the query fails.
func (r *QueryRecordRepository) ListRecent(ctx context.Context, purpose domain.QueryPurpose, limit int) ([]domain.QueryRecord, error) {
	var recs []domain.QueryRecord
	query := r.db.WithContext(ctx).Model(&domain.QueryRecord{})
	if purpose != "" {
		query = query.Where("purpose = ?", purpose)
	}
	if err := query.Order("started_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}
