// Package catalog discovers which tickers exist by querying the dataset itself.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/predictboard/internal/domain"
	"github.com/timmy/predictboard/internal/sqltext"
)

// ErrUnexpectedShape is returned when the discovery result is not a single column.
var ErrUnexpectedShape = errors.New("discovery result must have exactly one column")

// Executor runs a statement and returns its table.
type Executor interface {
	Execute(ctx context.Context, job domain.QueryJob) (*domain.ResultTable, error)
}

// Config names the partitioned table and the partition value to ignore.
type Config struct {
	Table           string
	PartitionColumn string
	Sentinel        string
	WorkGroup       string
}

// Reader lists entities through the query executor.
type Reader struct {
	exec Executor
	cfg  Config
}

// NewReader creates a catalog reader.
func NewReader(exec Executor, cfg Config) *Reader {
	if cfg.PartitionColumn == "" {
		cfg.PartitionColumn = "ticker"
	}
	return &Reader{exec: exec, cfg: cfg}
}

// Statement returns the discovery SQL for a database.
func (r *Reader) Statement(database string) string {
	col := sqltext.Ident(r.cfg.PartitionColumn)
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s.%s WHERE %s <> %s",
		col,
		sqltext.Ident(database),
		sqltext.Ident(r.cfg.Table),
		col,
		sqltext.Literal(r.cfg.Sentinel),
	)
}

// ListEntities returns the distinct partition values in service order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - database: Athena database holding the table.
//   - outputLocation: s3:// prefix for query output.
// Returns:
//   - []string: entity identifiers; null cells are skipped.
//   - error: executor errors, or ErrUnexpectedShape.
func (r *Reader) ListEntities(ctx context.Context, database, outputLocation string) ([]string, error) {
	table, err := r.exec.Execute(ctx, domain.QueryJob{
		Statement:      r.Statement(database),
		Database:       database,
		OutputLocation: outputLocation,
		WorkGroup:      r.cfg.WorkGroup,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog discovery failed: %w", err)
	}
	if len(table.Columns) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrUnexpectedShape, len(table.Columns))
	}

	entities := make([]string, 0, table.Len())
	for _, row := range table.Rows {
		if row[0].Valid {
			entities = append(entities, row[0].String)
		}
	}
	return entities, nil
}
