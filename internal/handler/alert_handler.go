package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-insights-api/internal/dto"
	"github.com/noah-isme/attendance-insights-api/internal/models"
	appErrors "github.com/noah-isme/attendance-insights-api/pkg/errors"
	"github.com/noah-isme/attendance-insights-api/pkg/response"
)

type alertDispatcher interface {
	Dispatch(ctx context.Context, req dto.AlertDispatchRequest) (*dto.AlertDispatchResponse, error)
	History(ctx context.Context, query dto.AlertHistoryQuery) ([]models.AttendanceAlert, error)
}

// AlertHandler exposes low attendance notifications.
type AlertHandler struct {
	alerts alertDispatcher
}

// NewAlertHandler constructs the handler.
func NewAlertHandler(alerts alertDispatcher) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// Dispatch godoc
// @Summary Queue low attendance alerts
// @Tags Alerts
// @Accept json
// @Produce json
// @Param payload body dto.AlertDispatchRequest false "Threshold and optional student filter"
// @Success 202 {object} response.Envelope
// @Failure 500 {object} response.Envelope "error.details holds the alerts that were queued before the failure"
// @Failure 503 {object} response.Envelope
// @Router /attendance/alerts [post]
func (h *AlertHandler) Dispatch(c *gin.Context) {
	var req dto.AlertDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	result, err := h.alerts.Dispatch(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, result)
}

// History godoc
// @Summary Recorded alerts
// @Tags Alerts
// @Produce json
// @Param status query string false "QUEUED, SENT, SKIPPED or FAILED"
// @Param limit query int false "Maximum rows (default 50)"
// @Success 200 {object} response.Envelope
// @Router /attendance/alerts [get]
func (h *AlertHandler) History(c *gin.Context) {
	var query dto.AlertHistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	alerts, err := h.alerts.History(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alerts, map[string]interface{}{"total": len(alerts)})
}
