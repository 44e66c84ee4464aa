package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/predictboard/internal/chart"
	"github.com/timmy/predictboard/internal/executor"
	"github.com/timmy/predictboard/internal/logger"
	"github.com/timmy/predictboard/internal/repository"
	"github.com/timmy/predictboard/internal/series"
	"github.com/timmy/predictboard/internal/service"
	"github.com/timmy/predictboard/internal/storage"
)

// StatusFor maps a pipeline error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, series.ErrInvalidEntity),
		errors.Is(err, service.ErrTableNotAllowed),
		errors.Is(err, service.ErrLimitOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrRecordNotFound),
		errors.Is(err, service.ErrResultUnavailable),
		errors.Is(err, storage.ErrObjectNotFound),
		errors.Is(err, chart.ErrNothingToDraw):
		return http.StatusNotFound
	case errors.Is(err, executor.ErrQueryTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	if _, ok := executor.IsQueryExecutionError(err); ok {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// ErrorMessage is the text shown to users for an error.
// Query failures show only the service-provided reason.
func ErrorMessage(err error) string {
	if qe, ok := executor.IsQueryExecutionError(err); ok {
		return "Query " + string(qe.State) + ": " + qe.Reason
	}
	return err.Error()
}

func respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		logger.CtxError(c.Request.Context(), "Request failed: status=%d error=%v", status, err)
	}
	body := gin.H{"error": ErrorMessage(err)}
	if qe, ok := executor.IsQueryExecutionError(err); ok {
		body["query_execution_id"] = qe.ExecutionID
		body["state"] = qe.State
	}
	c.JSON(status, body)
}
