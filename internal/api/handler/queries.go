package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/guregu/null/v6"

	"github.com/timmy/predictboard/internal/domain"
	"github.com/timmy/predictboard/internal/service"
)

// QueryHandler serves table browsing and query history.
type QueryHandler struct {
	dashboard    *service.DashboardService
	queries      *service.QueryService
	historyLimit int
}

// NewQueryHandler creates a new query handler.
// Parameters:
//   - dashboard: dashboard service used for table browsing.
//   - queries: query service used for history and result downloads.
//   - historyLimit: default number of records listed.
// Returns:
//   - *QueryHandler: initialized handler.
func NewQueryHandler(dashboard *service.DashboardService, queries *service.QueryService, historyLimit int) *QueryHandler {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &QueryHandler{dashboard: dashboard, queries: queries, historyLimit: historyLimit}
}

// BrowseRequest is the body of POST /api/v1/queries.
type BrowseRequest struct {
	Table string `json:"table" binding:"required"`
	Limit int    `json:"limit"`
}

// BrowseResponse is the JSON form of a table preview.
type BrowseResponse struct {
	RecordID  string          `json:"record_id,omitempty"`
	Statement string          `json:"statement"`
	Columns   []string        `json:"columns"`
	Rows      [][]null.String `json:"rows"`
	RowCount  int             `json:"row_count"`
	Cached    bool            `json:"cached"`
	Notice    string          `json:"notice,omitempty"`
}

// Submit handles POST /api/v1/queries.
func (h *QueryHandler) Submit(c *gin.Context) {
	var req BrowseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	res, err := h.dashboard.BrowseTable(c.Request.Context(), req.Table, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	rows := res.Table.Rows
	if rows == nil {
		rows = [][]null.String{}
	}
	c.JSON(http.StatusOK, BrowseResponse{
		RecordID:  res.RecordID,
		Statement: res.Statement,
		Columns:   res.Table.Columns,
		Rows:      rows,
		RowCount:  res.Table.Len(),
		Cached:    res.Cached,
		Notice:    res.Notice,
	})
}

// List handles GET /api/v1/queries.
// Query parameters: purpose (discovery|series|browse), limit.
func (h *QueryHandler) List(c *gin.Context) {
	limit := h.historyLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := h.queries.History(c.Request.Context(), domain.QueryPurpose(c.Query("purpose")), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if records == nil {
		records = []domain.QueryRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"queries": records,
		"total":   len(records),
	})
}

// Get handles GET /api/v1/queries/:id.
func (h *QueryHandler) Get(c *gin.Context) {
	rec, err := h.queries.Record(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ResultsCSV handles GET /api/v1/queries/:id/results.csv by streaming the Athena output object.
func (h *QueryHandler) ResultsCSV(c *gin.Context) {
	id := c.Param("id")
	body, err := h.queries.ResultCSV(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	defer body.Close()

	c.Header("Content-Disposition", `attachment; filename="`+id+`.csv"`)
	c.Header("Content-Type", "text/csv")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		_ = c.Error(err)
	}
}
