package series

import (
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/predictboard/internal/domain"
)

func fixedAssembler() *Assembler {
	return NewAssembler(Config{
		Database:        "markets",
		Table:           "prices",
		PredictionTable: "predictions",
		WindowDays:      120,
		ReferenceDate:   time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC),
	})
}

func TestBuildQueryFixedReferenceDate(t *testing.T) {
	sql, err := fixedAssembler().BuildQuery("ABEV3")
	require.NoError(t, err)

	assert.Contains(t, sql, `max("captured_at")`)
	assert.Contains(t, sql, `FROM "markets"."predictions"`)
	assert.Contains(t, sql, `FROM "markets"."prices"`)
	assert.Contains(t, sql, `"ticker" = 'ABEV3'`)
	assert.Contains(t, sql, `date_add('day', -120, DATE '2024-06-28') AND DATE '2024-06-28'`)
	assert.Contains(t, sql, `'real' AS tag`)
	assert.Contains(t, sql, `SELECT DISTINCT`)
	assert.Contains(t, sql, `'predicted' AS tag`)
	assert.Contains(t, sql, "UNION ALL")
	assert.Contains(t, sql, "ORDER BY date ASC")
	assert.NotContains(t, sql, "current_date")

	again, err := fixedAssembler().BuildQuery("ABEV3")
	require.NoError(t, err)
	assert.Equal(t, sql, again)
}

func TestBuildQueryDefaultsToCurrentDate(t *testing.T) {
	a := NewAssembler(Config{Table: "prices", PredictionTable: "predictions"})
	sql, err := a.BuildQuery("PETR4")
	require.NoError(t, err)
	assert.Contains(t, sql, "date_add('day', -120, current_date)")
	assert.Equal(t, 120, a.WindowDays())
}

func TestBuildQueryRejectsUnsafeEntity(t *testing.T) {
	for _, entity := range []string{"", "ABEV3'; DROP TABLE prices; --", "a b", "-lead", "X234567890123456789012345678901234"} {
		_, err := fixedAssembler().BuildQuery(entity)
		assert.ErrorIs(t, err, ErrInvalidEntity, entity)
	}
	for _, entity := range []string{"ABEV3", "BRK.B", "btc-usd", "VALE3_F"} {
		assert.True(t, ValidEntity(entity), entity)
	}
}

func row(date, price, tag string) []null.String {
	cell := func(v string) null.String {
		if v == "" {
			return null.String{}
		}
		return null.StringFrom(v)
	}
	return []null.String{cell(date), cell(price), cell(tag)}
}

func TestAssembleSortsByDate(t *testing.T) {
	table := &domain.ResultTable{
		Columns: []string{"date", "price", "tag"},
		Rows: [][]null.String{
			row("2024-07-02", "15.10", "predicted"),
			row("2024-06-27", "14.02", "real"),
			row("2024-06-28 00:00:00.000", "14.20", "real"),
			row("2024-06-28", "14.25", "predicted"),
			row("", "1", "real"),
			row("2024-06-26", "", "real"),
		},
	}

	s, err := Assemble("ABEV3", table)
	require.NoError(t, err)
	require.Len(t, s.Points, 4)
	assert.Equal(t, "ABEV3", s.Entity)

	for i := 1; i < len(s.Points); i++ {
		assert.False(t, s.Points[i].Date.Before(s.Points[i-1].Date))
	}
	assert.Equal(t, domain.TagReal, s.Points[1].Tag)
	assert.Equal(t, domain.TagPredicted, s.Points[2].Tag)
	assert.Equal(t, "14.2", s.Points[1].Price.String())
	assert.Equal(t, []domain.Tag{domain.TagReal, domain.TagPredicted}, s.Tags())
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name    string
		table   *domain.ResultTable
		wantErr error
	}{
		{
			name:    "missing tag column",
			table:   &domain.ResultTable{Columns: []string{"date", "price"}},
			wantErr: ErrUnexpectedShape,
		},
		{
			name: "bad price",
			table: &domain.ResultTable{
				Columns: []string{"date", "price", "tag"},
				Rows:    [][]null.String{row("2024-06-01", "abc", "real")},
			},
		},
		{
			name: "bad date",
			table: &domain.ResultTable{
				Columns: []string{"date", "price", "tag"},
				Rows:    [][]null.String{row("06/01/2024", "1.0", "real")},
			},
		},
		{
			name: "bad tag",
			table: &domain.ResultTable{
				Columns: []string{"date", "price", "tag"},
				Rows:    [][]null.String{row("2024-06-01", "1.0", "guess")},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble("ABEV3", tt.table)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestAssembleEmptyTable(t *testing.T) {
	s, err := Assemble("ABEV3", &domain.ResultTable{Columns: []string{"date", "price", "tag"}})
	require.NoError(t, err)
	assert.Empty(t, s.Points)
}
