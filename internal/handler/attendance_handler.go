package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/attendance-insights-api/internal/dto"
	"github.com/noah-isme/attendance-insights-api/internal/middleware"
	"github.com/noah-isme/attendance-insights-api/internal/models"
	appErrors "github.com/noah-isme/attendance-insights-api/pkg/errors"
	"github.com/noah-isme/attendance-insights-api/pkg/response"
)

type attendanceReporter interface {
	Report(ctx context.Context) (*models.AggregateReport, bool, error)
	Overview(ctx context.Context) (*models.ClassOverview, bool, error)
}

type lowAttendanceFinder interface {
	LowAttendance(ctx context.Context, query dto.LowAttendanceQuery) (*dto.LowAttendanceResponse, error)
}

// AttendanceHandler exposes the aggregated attendance report.
type AttendanceHandler struct {
	reports   attendanceReporter
	low       lowAttendanceFinder
	validator *validator.Validate
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(reports attendanceReporter, low lowAttendanceFinder) *AttendanceHandler {
	return &AttendanceHandler{reports: reports, low: low, validator: validator.New()}
}

// Report godoc
// @Summary Aggregated attendance report
// @Description Merges every stored session file and returns per-student, per-day and per-subject statistics.
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /attendance/report [get]
func (h *AttendanceHandler) Report(c *gin.Context) {
	report, cached, err := h.reports.Report(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, report, middleware.ExtractMeta(c))
}

// Overview godoc
// @Summary Class overview
// @Description Rates each stored session file against the roster of every student seen, with a monthly trend.
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /attendance/overview [get]
func (h *AttendanceHandler) Overview(c *gin.Context) {
	overview, cached, err := h.reports.Overview(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, overview, middleware.ExtractMeta(c))
}

// Students godoc
// @Summary Per-student attendance
// @Tags Attendance
// @Produce json
// @Param search query string false "Case-insensitive match on name or student id"
// @Param below query number false "Only students strictly below this percentage"
// @Success 200 {object} response.Envelope
// @Router /attendance/students [get]
func (h *AttendanceHandler) Students(c *gin.Context) {
	var query dto.StudentListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	if err := h.validator.Struct(query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	report, cached, err := h.reports.Report(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	students := report.Students
	if query.Below != nil {
		students = report.BelowThreshold(*query.Below)
	}
	if needle := strings.ToLower(strings.TrimSpace(query.Search)); needle != "" {
		filtered := make([]models.StudentAttendance, 0, len(students))
		for _, st := range students {
			if strings.Contains(strings.ToLower(st.Name), needle) || strings.Contains(strings.ToLower(st.StudentID), needle) {
				filtered = append(filtered, st)
			}
		}
		students = filtered
	}

	middleware.SetCacheHit(c, cached)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["total"] = len(students)
	meta["total_classes"] = report.TotalClasses
	response.JSON(c, http.StatusOK, students, meta)
}

// LowAttendance godoc
// @Summary Students below the attendance threshold
// @Tags Attendance
// @Produce json
// @Param threshold query number false "Threshold percentage (default 75)"
// @Success 200 {object} response.Envelope
// @Router /attendance/low [get]
func (h *AttendanceHandler) LowAttendance(c *gin.Context) {
	var query dto.LowAttendanceQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "threshold must be a number"))
		return
	}
	result, err := h.low.LowAttendance(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, map[string]interface{}{"total": len(result.Students)})
}
