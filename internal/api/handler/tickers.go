package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/timmy/predictboard/internal/service"
)

// TickerHandler serves ticker discovery, series and charts.
type TickerHandler struct {
	dashboard *service.DashboardService
}

// NewTickerHandler creates a new ticker handler.
// Parameters:
//   - dashboard: dashboard service instance.
// Returns:
//   - *TickerHandler: initialized handler.
func NewTickerHandler(dashboard *service.DashboardService) *TickerHandler {
	return &TickerHandler{dashboard: dashboard}
}

// List handles GET /api/v1/tickers.
func (h *TickerHandler) List(c *gin.Context) {
	tickers, err := h.dashboard.ListTickers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	body := gin.H{
		"tickers": tickers,
		"total":   len(tickers),
	}
	if len(tickers) == 0 {
		body["notice"] = service.NoRowsNotice
	}
	c.JSON(http.StatusOK, body)
}

// Series handles GET /api/v1/tickers/:ticker/series.
func (h *TickerHandler) Series(c *gin.Context) {
	res, err := h.dashboard.Series(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Chart handles GET /api/v1/tickers/:ticker/chart.png.
// Query parameters: from, to (YYYY-MM-DD), thumb (bool), format (png|svg).
func (h *TickerHandler) Chart(c *gin.Context) {
	from, err := parseDateParam(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from: " + err.Error()})
		return
	}
	to, err := parseDateParam(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to: " + err.Error()})
		return
	}
	format := c.DefaultQuery("format", "png")
	if format != "png" && format != "svg" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be png or svg"})
		return
	}

	img, contentType, err := h.dashboard.Chart(c.Request.Context(), c.Param("ticker"), service.ChartRequest{
		From:   from,
		To:     to,
		Format: format,
		Thumb:  c.Query("thumb") == "1" || c.Query("thumb") == "true",
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=60")
	c.Data(http.StatusOK, contentType, img)
}

func parseDateParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", v)
}
