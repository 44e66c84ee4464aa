package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomponents "maragu.dev/gomponents"

	"github.com/timmy/predictboard/internal/domain"
	"github.com/timmy/predictboard/internal/version"
)

func render(t *testing.T, node gomponents.Node) string {
	t.Helper()
	var b strings.Builder
	require.NoError(t, node.Render(&b))
	return b.String()
}

func TestHomePageNavigation(t *testing.T) {
	out := render(t, HomePage())
	for _, label := range []string{"HOME", "PREDICTIONS", "FORECASTS", "HISTORY", "VERSION"} {
		assert.Contains(t, out, label)
	}
	assert.True(t, strings.HasPrefix(out, "<!doctype html>"))
}

func TestPredictionsPageForm(t *testing.T) {
	out := render(t, PredictionsPage(PredictionsView{
		Tables:        []string{"markets.prices", "markets.predictions"},
		SelectedTable: "markets.predictions",
		Limit:         100,
		MinRows:       10,
		MaxRows:       1000,
	}))
	assert.Contains(t, out, `type="range"`)
	assert.Contains(t, out, `min="10"`)
	assert.Contains(t, out, `max="1000"`)
	assert.Contains(t, out, `value="100"`)
	assert.Contains(t, out, `<option value="markets.predictions" selected>`)
	assert.Contains(t, out, "Run Query")
}

func TestPredictionsPageResult(t *testing.T) {
	table := &domain.ResultTable{
		Columns: []string{"date", "price"},
		Rows:    [][]null.String{{null.StringFrom("2024-06-27"), null.String{}}},
	}
	out := render(t, PredictionsPage(PredictionsView{
		Limit:     10,
		Statement: `SELECT * FROM "markets"."prices" LIMIT 10`,
		Result:    table,
		RecordID:  "rec-1",
	}))
	assert.Contains(t, out, "Returned 1 rows")
	assert.Contains(t, out, "<th>date</th>")
	assert.Contains(t, out, `<td class="null">null</td>`)
	assert.Contains(t, out, "/api/v1/queries/rec-1/results.csv")

	empty := render(t, PredictionsPage(PredictionsView{
		Result: &domain.ResultTable{Columns: []string{"date"}},
		Notice: "Query returned no rows.",
	}))
	assert.Contains(t, empty, "Query returned no rows.")

	failed := render(t, PredictionsPage(PredictionsView{Error: "query abc FAILED: INSUFFICIENT_PERMISSIONS"}))
	assert.Contains(t, failed, "INSUFFICIENT_PERMISSIONS")
	assert.NotContains(t, failed, "<table>")
}

func TestForecastsPage(t *testing.T) {
	v := ForecastsView{
		Tickers:  []string{"ABEV3", "PETR4"},
		Selected: "ABEV3",
		Span:     124,
		FromDay:  4,
		ToDay:    124,
		Start:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "/api/v1/tickers/ABEV3/chart.png?from=2024-03-05&to=2024-07-03", v.ChartURL())

	out := render(t, ForecastsPage(v))
	assert.Contains(t, out, "Show forecast")
	assert.Contains(t, out, `name="from_day"`)
	assert.Contains(t, out, `max="124"`)
	assert.Contains(t, out, `<img class="chart"`)

	picker := render(t, ForecastsPage(ForecastsView{Tickers: []string{"ABEV3"}}))
	assert.NotContains(t, picker, "<img")
}

func TestHistoryAndVersionPages(t *testing.T) {
	out := render(t, HistoryPage([]domain.QueryRecord{
		{ID: "r1", Purpose: domain.QueryPurposeBrowse, Status: domain.JobStatusSucceeded, OutputURI: "s3://b/r1.csv", RowCount: 3},
		{ID: "r2", Purpose: domain.QueryPurposeSeries, Status: domain.JobStatusFailed, Reason: "boom"},
	}, ""))
	assert.Contains(t, out, "/api/v1/queries/r1/results.csv")
	assert.NotContains(t, out, "/api/v1/queries/r2/results.csv")
	assert.Contains(t, out, "boom")

	assert.Contains(t, render(t, HistoryPage(nil, "")), "No queries have run yet.")

	v := render(t, VersionPage(version.Info{Version: "v1.0.0", Commit: "abc123", BuildTime: "2024-06-28", GoVersion: "go1.24"}))
	assert.Contains(t, v, "v1.0.0")
	assert.Contains(t, v, "abc123")
}
