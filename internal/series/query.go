// Package series builds the history-plus-forecast statement for one ticker
// and turns its result table into a sorted series.
package series

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/timmy/predictboard/internal/sqltext"
)

// ErrInvalidEntity is returned for ticker strings that are not safe to embed in SQL.
var ErrInvalidEntity = errors.New("invalid entity identifier")

var entityPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,31}$`)

// ValidEntity reports whether an identifier may be used in a series statement.
func ValidEntity(entity string) bool {
	return entityPattern.MatchString(entity)
}

// Config names the tables and columns behind a series.
type Config struct {
	Database         string
	Table            string
	PredictionTable  string
	TickerColumn     string
	DateColumn       string
	PriceColumn      string
	PredictedColumn  string
	CapturedAtColumn string
	WindowDays       int
	// ReferenceDate ends the trailing window. Zero means current_date.
	ReferenceDate time.Time
}

func (c *Config) withDefaults() {
	if c.TickerColumn == "" {
		c.TickerColumn = "ticker"
	}
	if c.DateColumn == "" {
		c.DateColumn = "date"
	}
	if c.PriceColumn == "" {
		c.PriceColumn = "close"
	}
	if c.PredictedColumn == "" {
		c.PredictedColumn = "predicted_price"
	}
	if c.CapturedAtColumn == "" {
		c.CapturedAtColumn = "captured_at"
	}
	if c.WindowDays <= 0 {
		c.WindowDays = 120
	}
}

var statementTemplate = template.Must(template.New("series").Parse(
	`WITH latest AS (
  SELECT max({{.CapturedAt}}) AS captured_at
  FROM {{.Predictions}}
  WHERE {{.Ticker}} = {{.Entity}}
)
SELECT date, price, tag FROM (
  SELECT CAST({{.Date}} AS varchar) AS date, CAST({{.Price}} AS varchar) AS price, 'real' AS tag
  FROM {{.Observed}}
  WHERE {{.Ticker}} = {{.Entity}}
    AND {{.Date}} BETWEEN date_add('day', -{{.WindowDays}}, {{.RefDate}}) AND {{.RefDate}}
  UNION ALL
  SELECT DISTINCT CAST(p.{{.Date}} AS varchar) AS date, CAST(p.{{.Predicted}} AS varchar) AS price, 'predicted' AS tag
  FROM {{.Predictions}} p
  JOIN latest l ON p.{{.CapturedAt}} = l.captured_at
  WHERE p.{{.Ticker}} = {{.Entity}}
)
ORDER BY date ASC`))

type statementData struct {
	Entity      string
	Observed    string
	Predictions string
	Ticker      string
	Date        string
	Price       string
	Predicted   string
	CapturedAt  string
	WindowDays  int
	RefDate     string
}

// Assembler builds series statements and assembles their results.
type Assembler struct {
	cfg Config
}

// NewAssembler creates an assembler; empty column names take their defaults.
func NewAssembler(cfg Config) *Assembler {
	cfg.withDefaults()
	return &Assembler{cfg: cfg}
}

// WindowDays returns the trailing window length.
func (a *Assembler) WindowDays() int {
	return a.cfg.WindowDays
}

// BuildQuery renders the statement for one entity.
// Parameters:
//   - entity: ticker identifier; must match the entity pattern.
// Returns:
//   - string: SQL statement yielding date, price, tag rows ordered by date.
//   - error: ErrInvalidEntity, or a template error.
func (a *Assembler) BuildQuery(entity string) (string, error) {
	if !ValidEntity(entity) {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntity, entity)
	}

	refDate := "current_date"
	if !a.cfg.ReferenceDate.IsZero() {
		refDate = "DATE " + sqltext.Literal(a.cfg.ReferenceDate.Format(dateLayout))
	}

	data := statementData{
		Entity:      sqltext.Literal(entity),
		Observed:    a.table(a.cfg.Table),
		Predictions: a.table(a.cfg.PredictionTable),
		Ticker:      sqltext.Ident(a.cfg.TickerColumn),
		Date:        sqltext.Ident(a.cfg.DateColumn),
		Price:       sqltext.Ident(a.cfg.PriceColumn),
		Predicted:   sqltext.Ident(a.cfg.PredictedColumn),
		CapturedAt:  sqltext.Ident(a.cfg.CapturedAtColumn),
		WindowDays:  a.cfg.WindowDays,
		RefDate:     refDate,
	}

	var b strings.Builder
	if err := statementTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render series statement: %w", err)
	}
	return b.String(), nil
}

func (a *Assembler) table(name string) string {
	if a.cfg.Database == "" || strings.Contains(name, ".") {
		return sqltext.QualifiedIdent(name)
	}
	return sqltext.Ident(a.cfg.Database) + "." + sqltext.Ident(name)
}
