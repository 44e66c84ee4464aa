// Package client is the HTTP client for the predictboard JSON API.
package client

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/guregu/null/v6"

	"github.com/timmy/predictboard/internal/domain"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode       int    `json:"-"`
	Message          string `json:"error"`
	QueryExecutionID string `json:"query_execution_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.QueryExecutionID != "" {
		return fmt.Sprintf("server returned %d: %s (query %s)", e.StatusCode, e.Message, e.QueryExecutionID)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running predictboard server.
type Client struct {
	http *resty.Client
}

// New creates a client for baseURL, e.g. http://localhost:8080.
func New(baseURL string, timeout time.Duration) *Client {
	c := resty.New()
	c.SetBaseURL(baseURL)
	c.SetHeader("Accept", "application/json")
	c.SetTimeout(timeout)
	return &Client{http: c}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetError(&APIError{})
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		apiErr, ok := resp.Error().(*APIError)
		if !ok || apiErr.Message == "" {
			apiErr = &APIError{Message: resp.Status()}
		}
		apiErr.StatusCode = resp.StatusCode()
		return apiErr
	}
	return nil
}

// TickersResponse is the body of GET /api/v1/tickers.
type TickersResponse struct {
	Tickers []string `json:"tickers"`
	Total   int      `json:"total"`
	Notice  string   `json:"notice,omitempty"`
}

// Tickers lists the discovered tickers.
func (c *Client) Tickers(ctx context.Context) (*TickersResponse, error) {
	var out TickersResponse
	resp, err := c.request(ctx).SetResult(&out).Get("/api/v1/tickers")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// SeriesResponse is the body of GET /api/v1/tickers/:ticker/series.
type SeriesResponse struct {
	Series domain.Series `json:"series"`
	Notice string        `json:"notice,omitempty"`
	Cached bool          `json:"cached"`
}

// Series fetches the assembled series of one ticker.
func (c *Client) Series(ctx context.Context, ticker string) (*SeriesResponse, error) {
	var out SeriesResponse
	resp, err := c.request(ctx).
		SetPathParam("ticker", ticker).
		SetResult(&out).
		Get("/api/v1/tickers/{ticker}/series")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChartParams selects the chart window and encoding. Dates are YYYY-MM-DD.
type ChartParams struct {
	From   string
	To     string
	Format string
	Thumb  bool
}

// Chart downloads a rendered chart image.
func (c *Client) Chart(ctx context.Context, ticker string, p ChartParams) ([]byte, error) {
	req := c.request(ctx).SetPathParam("ticker", ticker)
	if p.From != "" {
		req.SetQueryParam("from", p.From)
	}
	if p.To != "" {
		req.SetQueryParam("to", p.To)
	}
	if p.Format != "" {
		req.SetQueryParam("format", p.Format)
	}
	if p.Thumb {
		req.SetQueryParam("thumb", "1")
	}
	resp, err := req.Get("/api/v1/tickers/{ticker}/chart.png")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// QueryResponse is the body of POST /api/v1/queries.
type QueryResponse struct {
	RecordID  string          `json:"record_id,omitempty"`
	Statement string          `json:"statement"`
	Columns   []string        `json:"columns"`
	Rows      [][]null.String `json:"rows"`
	RowCount  int             `json:"row_count"`
	Cached    bool            `json:"cached"`
	Notice    string          `json:"notice,omitempty"`
}

// Query previews a configured table.
func (c *Client) Query(ctx context.Context, table string, limit int) (*QueryResponse, error) {
	var out QueryResponse
	resp, err := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{"table": table, "limit": limit}).
		SetResult(&out).
		Post("/api/v1/queries")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

type historyResponse struct {
	Queries []domain.QueryRecord `json:"queries"`
	Total   int                  `json:"total"`
}

// History lists recent query records, newest first.
func (c *Client) History(ctx context.Context, purpose string, limit int) ([]domain.QueryRecord, error) {
	var out historyResponse
	req := c.request(ctx).SetResult(&out)
	if purpose != "" {
		req.SetQueryParam("purpose", purpose)
	}
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	resp, err := req.Get("/api/v1/queries")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.Queries, nil
}

// DownloadCSV copies the CSV result of a record into w.
func (c *Client) DownloadCSV(ctx context.Context, recordID string, w io.Writer) (int64, error) {
	resp, err := c.request(ctx).
		SetPathParam("id", recordID).
		SetDoNotParseResponse(true).
		Get("/api/v1/queries/{id}/results.csv")
	if err != nil {
		return 0, err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(body, 4096))
		return 0, &APIError{StatusCode: resp.StatusCode(), Message: string(msg)}
	}
	return io.Copy(w, body)
}
