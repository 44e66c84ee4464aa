package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/predictboard/internal/chart"
	"github.com/timmy/predictboard/internal/domain"
	"github.com/timmy/predictboard/internal/logger"
	"github.com/timmy/predictboard/internal/series"
	"github.com/timmy/predictboard/internal/sqltext"
)

// NoRowsNotice is shown on every surface when a query returns an empty table.
const NoRowsNotice = "Query returned no rows."

var (
	ErrTableNotAllowed = errors.New("table is not in the configured list")
	ErrLimitOutOfRange = errors.New("row limit out of range")
)

// EntityLister enumerates tickers.
type EntityLister interface {
	ListEntities(ctx context.Context, database, outputLocation string) ([]string, error)
}

// EntityCache holds the last refreshed ticker list.
type EntityCache interface {
	Entities() ([]string, time.Time, bool)
}

// DashboardConfig holds the dataset location and page limits.
type DashboardConfig struct {
	Database       string
	OutputLocation string
	WorkGroup      string
	Tables         []string
	MinRows        int
	MaxRows        int
	DefaultRows    int
	ChartWidth     int
	ChartHeight    int
	ThumbWidth     int
}

// DashboardService drives the pipeline behind the pages: discover tickers,
// assemble series, render charts and browse tables.
type DashboardService struct {
	queries   *QueryService
	lister    EntityLister
	entities  EntityCache
	assembler *series.Assembler
	cfg       DashboardConfig
}

// NewDashboardService creates a new dashboard service.
// Parameters:
//   - queries: query service used for series and browse statements.
//   - lister: catalog reader used when no refreshed list exists.
//   - entities: optional refreshed ticker list; may be nil.
//   - assembler: series statement builder.
//   - cfg: dataset location and limits.
//
// Returns:
//   - *DashboardService: initialized service.
func NewDashboardService(
	queries *QueryService,
	lister EntityLister,
	entities EntityCache,
	assembler *series.Assembler,
	cfg DashboardConfig,
) *DashboardService {
	if cfg.MinRows <= 0 {
		cfg.MinRows = 10
	}
	if cfg.MaxRows < cfg.MinRows {
		cfg.MaxRows = 1000
	}
	if cfg.DefaultRows < cfg.MinRows || cfg.DefaultRows > cfg.MaxRows {
		cfg.DefaultRows = 100
	}
	return &DashboardService{
		queries:   queries,
		lister:    lister,
		entities:  entities,
		assembler: assembler,
		cfg:       cfg,
	}
}

// Tables returns the tables offered for browsing.
func (s *DashboardService) Tables() []string {
	return s.cfg.Tables
}

// RowLimits returns the slider bounds and default.
func (s *DashboardService) RowLimits() (lo, hi, def int) {
	return s.cfg.MinRows, s.cfg.MaxRows, s.cfg.DefaultRows
}

// WindowDays returns the trailing window of a series.
func (s *DashboardService) WindowDays() int {
	return s.assembler.WindowDays()
}

func (s *DashboardService) job(statement string) domain.QueryJob {
	return domain.QueryJob{
		Statement:      statement,
		Database:       s.cfg.Database,
		OutputLocation: s.cfg.OutputLocation,
		WorkGroup:      s.cfg.WorkGroup,
	}
}

// ListTickers returns the refreshed ticker list, discovering it on demand when none exists yet.
func (s *DashboardService) ListTickers(ctx context.Context) ([]string, error) {
	if s.entities != nil {
		if list, _, ok := s.entities.Entities(); ok {
			return list, nil
		}
	}
	return s.lister.ListEntities(ctx, s.cfg.Database, s.cfg.OutputLocation)
}

// SeriesResult is an assembled series with an optional notice.
type SeriesResult struct {
	Series *domain.Series `json:"series"`
	Notice string         `json:"notice,omitempty"`
	Cached bool           `json:"cached"`
}

// Series assembles history and forecast for one ticker.
// Parameters:
//   - ctx: request context.
//   - ticker: entity identifier.
// Returns:
//   - *SeriesResult: sorted series; Notice is set when no rows came back.
//   - error: series.ErrInvalidEntity, executor errors, or assembly errors.
func (s *DashboardService) Series(ctx context.Context, ticker string) (*SeriesResult, error) {
	ctx = logger.SetTicker(ctx, ticker)

	statement, err := s.assembler.BuildQuery(ticker)
	if err != nil {
		return nil, err
	}
	res, err := s.queries.Run(ctx, domain.QueryPurposeSeries, s.job(statement))
	if err != nil {
		return nil, fmt.Errorf("series query for %s failed: %w", ticker, err)
	}
	assembled, err := s.assembler.Assemble(ticker, res.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble series for %s: %w", ticker, err)
	}

	out := &SeriesResult{Series: assembled, Cached: res.Cached}
	if len(assembled.Points) == 0 {
		out.Notice = NoRowsNotice
	}
	return out, nil
}

// ChartRequest selects the window, format and size of a chart.
type ChartRequest struct {
	From   time.Time
	To     time.Time
	Format string
	Thumb  bool
}

// Chart renders the series of one ticker.
// Returns the encoded image and its content type.
func (s *DashboardService) Chart(ctx context.Context, ticker string, req ChartRequest) ([]byte, string, error) {
	res, err := s.Series(ctx, ticker)
	if err != nil {
		return nil, "", err
	}

	format := req.Format
	if req.Thumb {
		format = chart.FormatPNG
	}
	img, err := chart.Render(res.Series, ticker, chart.Options{
		Width:  s.cfg.ChartWidth,
		Height: s.cfg.ChartHeight,
		From:   req.From,
		To:     req.To,
		Format: format,
	})
	if err != nil {
		return nil, "", err
	}
	if req.Thumb {
		if img, err = chart.Thumbnail(img, s.cfg.ThumbWidth); err != nil {
			return nil, "", err
		}
	}
	return img, chart.ContentType(format), nil
}

// BrowseResult is the outcome of a table preview.
type BrowseResult struct {
	Table     *domain.ResultTable
	Statement string
	Notice    string
	Cached    bool
	RecordID  string
}

// BrowseTable runs SELECT * with a row limit on an allowed table.
// Parameters:
//   - ctx: request context.
//   - table: one of Tables().
//   - limit: row limit; zero uses the default.
// Returns:
//   - *BrowseResult: rows, possibly empty with a notice.
//   - error: ErrTableNotAllowed, ErrLimitOutOfRange, or executor errors.
func (s *DashboardService) BrowseTable(ctx context.Context, table string, limit int) (*BrowseResult, error) {
	if !s.allowed(table) {
		return nil, fmt.Errorf("%w: %q", ErrTableNotAllowed, table)
	}
	if limit == 0 {
		limit = s.cfg.DefaultRows
	}
	if limit < s.cfg.MinRows || limit > s.cfg.MaxRows {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrLimitOutOfRange, limit, s.cfg.MinRows, s.cfg.MaxRows)
	}

	statement := fmt.Sprintf("SELECT * FROM %s LIMIT %d", sqltext.QualifiedIdent(table), limit)
	res, err := s.queries.Run(ctx, domain.QueryPurposeBrowse, s.job(statement))
	if err != nil {
		return nil, err
	}

	out := &BrowseResult{
		Table:     res.Table,
		Statement: statement,
		Cached:    res.Cached,
		RecordID:  res.RecordID,
	}
	if res.Table.Empty() {
		out.Notice = NoRowsNotice
	}
	return out, nil
}

func (s *DashboardService) allowed(table string) bool {
	for _, t := range s.cfg.Tables {
		if t == table {
			return true
		}
	}
	return false
}
