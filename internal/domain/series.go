package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Tag is the provenance of a series point.
type Tag string

const (
	TagReal      Tag = "real"
	TagPredicted Tag = "predicted"
)

// ParseTag validates a provenance label.
func ParseTag(s string) (Tag, error) {
	switch Tag(s) {
	case TagReal, TagPredicted:
		return Tag(s), nil
	}
	return "", fmt.Errorf("unknown tag %q", s)
}

// SeriesPoint is one dated price.
type SeriesPoint struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
	Tag   Tag             `json:"tag"`
}

// Series is the assembled history and forecast of one ticker.
type Series struct {
	Entity string        `json:"entity"`
	Points []SeriesPoint `json:"points"`
}

// SortByDate orders points by date, keeping the service order for equal dates.
func (s *Series) SortByDate() {
	sort.SliceStable(s.Points, func(i, j int) bool {
		return s.Points[i].Date.Before(s.Points[j].Date)
	})
}

// Tags returns the distinct tags in first-seen order.
func (s *Series) Tags() []Tag {
	seen := make(map[Tag]bool)
	var tags []Tag
	for _, p := range s.Points {
		if !seen[p.Tag] {
			seen[p.Tag] = true
			tags = append(tags, p.Tag)
		}
	}
	return tags
}

// Window returns a copy holding only points whose date lies in [from, to].
// A zero bound is open.
func (s *Series) Window(from, to time.Time) *Series {
	out := &Series{Entity: s.Entity}
	for _, p := range s.Points {
		if !from.IsZero() && p.Date.Before(from) {
			continue
		}
		if !to.IsZero() && p.Date.After(to) {
			continue
		}
		out.Points = append(out.Points, p)
	}
	return out
}

// Bounds returns the first and last dates, or zero times for an empty series.
func (s *Series) Bounds() (time.Time, time.Time) {
	if len(s.Points) == 0 {
		return time.Time{}, time.Time{}
	}
	first, last := s.Points[0].Date, s.Points[0].Date
	for _, p := range s.Points[1:] {
		if p.Date.Before(first) {
			first = p.Date
		}
		if p.Date.After(last) {
			last = p.Date
		}
	}
	return first, last
}
