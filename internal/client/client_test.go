package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tickers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tickers":["ABEV3","PETR4"],"total":2}`))
	})
	mux.HandleFunc("/api/v1/tickers/ABEV3/series", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"series":{"entity":"ABEV3","points":[{"date":"2024-06-27T00:00:00Z","price":"14.02","tag":"real"}]},"cached":true}`))
	})
	mux.HandleFunc("/api/v1/tickers/FAIL3/series", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"Query FAILED: INSUFFICIENT_PERMISSIONS","query_execution_id":"exec-f"}`))
	})
	mux.HandleFunc("/api/v1/tickers/ABEV3/chart.png", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-06-01", r.URL.Query().Get("from"))
		assert.Equal(t, "1", r.URL.Query().Get("thumb"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNGdata"))
	})
	mux.HandleFunc("/api/v1/queries", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "markets.prices", body["table"])
			assert.Equal(t, float64(10), body["limit"])
			_, _ = w.Write([]byte(`{"record_id":"r1","statement":"SELECT 1","columns":["date","price"],"rows":[["2024-06-27",null]],"row_count":1,"cached":false}`))
			return
		}
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"queries":[{"id":"r1","purpose":"browse","statement":"SELECT 1","status":"SUCCEEDED","row_count":1}],"total":1}`))
	})
	mux.HandleFunc("/api/v1/queries/r1/results.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("\"date\",\"price\"\n"))
	})
	mux.HandleFunc("/api/v1/queries/missing/results.csv", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"query record not found"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, 5*time.Second)
	ctx := context.Background()

	tickers, err := c.Tickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABEV3", "PETR4"}, tickers.Tickers)

	series, err := c.Series(ctx, "ABEV3")
	require.NoError(t, err)
	assert.True(t, series.Cached)
	require.Len(t, series.Series.Points, 1)
	assert.Equal(t, "14.02", series.Series.Points[0].Price.String())

	img, err := c.Chart(ctx, "ABEV3", ChartParams{From: "2024-06-01", Thumb: true})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, []byte("\x89PNG")))

	q, err := c.Query(ctx, "markets.prices", 10)
	require.NoError(t, err)
	assert.Equal(t, "r1", q.RecordID)
	require.Len(t, q.Rows, 1)
	assert.False(t, q.Rows[0][1].Valid)

	recs, err := c.History(ctx, "", 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "r1", recs[0].ID)

	var buf bytes.Buffer
	n, err := c.DownloadCSV(ctx, "r1", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, "\"date\",\"price\"\n", buf.String())
}

func TestClientErrors(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, 5*time.Second)

	_, err := c.Series(context.Background(), "FAIL3")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "exec-f", apiErr.QueryExecutionID)
	assert.Contains(t, apiErr.Error(), "INSUFFICIENT_PERMISSIONS")

	_, err = c.DownloadCSV(context.Background(), "missing", io.Discard)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
