package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	gomponents "maragu.dev/gomponents"

	"github.com/timmy/predictboard/internal/api/middleware"
	"github.com/timmy/predictboard/internal/service"
	"github.com/timmy/predictboard/internal/ui"
	"github.com/timmy/predictboard/internal/version"
)

// PageHandler renders the HTML dashboard.
type PageHandler struct {
	dashboard    *service.DashboardService
	queries      *service.QueryService
	historyLimit int
}

// NewPageHandler creates a new page handler.
// Parameters:
//   - dashboard: dashboard service instance.
//   - queries: query service used for the history page.
//   - historyLimit: number of records on the history page.
// Returns:
//   - *PageHandler: initialized handler.
func NewPageHandler(dashboard *service.DashboardService, queries *service.QueryService, historyLimit int) *PageHandler {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &PageHandler{dashboard: dashboard, queries: queries, historyLimit: historyLimit}
}

func renderHTML(c *gin.Context, status int, node gomponents.Node) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	if err := node.Render(c.Writer); err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to render page")
	}
}

// Home handles GET /.
func (h *PageHandler) Home(c *gin.Context) {
	renderHTML(c, http.StatusOK, ui.HomePage())
}

func (h *PageHandler) predictionsView() ui.PredictionsView {
	lo, hi, def := h.dashboard.RowLimits()
	v := ui.PredictionsView{
		Tables:  h.dashboard.Tables(),
		Limit:   def,
		MinRows: lo,
		MaxRows: hi,
	}
	if len(v.Tables) > 0 {
		v.SelectedTable = v.Tables[0]
	}
	return v
}

// Predictions handles GET /predictions.
func (h *PageHandler) Predictions(c *gin.Context) {
	renderHTML(c, http.StatusOK, ui.PredictionsPage(h.predictionsView()))
}

// RunPredictions handles POST /predictions, the "Run Query" button.
func (h *PageHandler) RunPredictions(c *gin.Context) {
	v := h.predictionsView()
	v.SelectedTable = c.PostForm("table")
	if raw := c.PostForm("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			v.Error = "Row limit must be a number"
			renderHTML(c, http.StatusBadRequest, ui.PredictionsPage(v))
			return
		}
		v.Limit = n
	}

	res, err := h.dashboard.BrowseTable(c.Request.Context(), v.SelectedTable, v.Limit)
	if err != nil {
		_ = c.Error(err)
		v.Error = ErrorMessage(err)
		renderHTML(c, StatusFor(err), ui.PredictionsPage(v))
		return
	}

	v.Statement = res.Statement
	v.Result = res.Table
	v.Notice = res.Notice
	v.Cached = res.Cached
	v.RecordID = res.RecordID
	renderHTML(c, http.StatusOK, ui.PredictionsPage(v))
}

// Forecasts handles GET /forecasts.
// Query parameters: ticker, from_day, to_day (day offsets from the first point).
func (h *PageHandler) Forecasts(c *gin.Context) {
	ctx := c.Request.Context()
	var v ui.ForecastsView

	tickers, err := h.dashboard.ListTickers(ctx)
	if err != nil {
		_ = c.Error(err)
		v.Error = ErrorMessage(err)
		renderHTML(c, StatusFor(err), ui.ForecastsPage(v))
		return
	}
	v.Tickers = tickers
	v.Selected = c.Query("ticker")
	if v.Selected == "" {
		if len(tickers) == 0 {
			v.Notice = service.NoRowsNotice
		}
		renderHTML(c, http.StatusOK, ui.ForecastsPage(v))
		return
	}

	res, err := h.dashboard.Series(ctx, v.Selected)
	if err != nil {
		_ = c.Error(err)
		v.Error = ErrorMessage(err)
		renderHTML(c, StatusFor(err), ui.ForecastsPage(v))
		return
	}
	if res.Notice != "" {
		v.Notice = res.Notice
		renderHTML(c, http.StatusOK, ui.ForecastsPage(v))
		return
	}

	start, end := res.Series.Bounds()
	v.Start = start
	v.Span = int(end.Sub(start).Hours() / 24)
	v.FromDay = clampDay(c.Query("from_day"), 0, v.Span)
	v.ToDay = clampDay(c.Query("to_day"), v.Span, v.Span)
	if v.FromDay > v.ToDay {
		v.FromDay, v.ToDay = v.ToDay, v.FromDay
	}
	renderHTML(c, http.StatusOK, ui.ForecastsPage(v))
}

func clampDay(raw string, def, span int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < 0 {
		return 0
	}
	if n > span {
		return span
	}
	return n
}

// History handles GET /history.
func (h *PageHandler) History(c *gin.Context) {
	records, err := h.queries.History(c.Request.Context(), "", h.historyLimit)
	if err != nil {
		_ = c.Error(err)
		renderHTML(c, http.StatusInternalServerError, ui.HistoryPage(nil, ErrorMessage(err)))
		return
	}
	renderHTML(c, http.StatusOK, ui.HistoryPage(records, ""))
}

// Version handles GET /version.
func (h *PageHandler) Version(c *gin.Context) {
	renderHTML(c, http.StatusOK, ui.VersionPage(version.Get()))
}
