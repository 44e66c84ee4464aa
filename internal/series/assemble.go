package series

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/timmy/predictboard/internal/domain"
)

// ErrUnexpectedShape is returned when the result lacks a date, price or tag column.
var ErrUnexpectedShape = errors.New("series result is missing required columns")

const dateLayout = "2006-01-02"

// Assemble converts a series result table into points sorted by date.
// Rows with a null date or price are skipped.
func (a *Assembler) Assemble(entity string, table *domain.ResultTable) (*domain.Series, error) {
	return Assemble(entity, table)
}

// Assemble converts a result with date, price and tag columns into a Series.
func Assemble(entity string, table *domain.ResultTable) (*domain.Series, error) {
	dateIdx := table.ColumnIndex("date")
	priceIdx := table.ColumnIndex("price")
	tagIdx := table.ColumnIndex("tag")
	if dateIdx < 0 || priceIdx < 0 || tagIdx < 0 {
		return nil, fmt.Errorf("%w: got %v", ErrUnexpectedShape, table.Columns)
	}

	s := &domain.Series{Entity: entity, Points: make([]domain.SeriesPoint, 0, table.Len())}
	for i, row := range table.Rows {
		if !row[dateIdx].Valid || !row[priceIdx].Valid {
			continue
		}
		date, err := parseDate(row[dateIdx].String)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(row[priceIdx].String))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid price %q: %w", i+1, row[priceIdx].String, err)
		}
		tag, err := domain.ParseTag(row[tagIdx].String)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		s.Points = append(s.Points, domain.SeriesPoint{Date: date, Price: price, Tag: tag})
	}

	s.SortByDate()
	return s, nil
}

// parseDate accepts YYYY-MM-DD, optionally followed by a time part.
func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if len(v) > len(dateLayout) {
		v = v[:len(dateLayout)]
	}
	d, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", v, err)
	}
	return d, nil
}
