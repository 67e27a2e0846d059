package dto

import (
	"time"

	"github.com/noah-isme/attendance-insights-api/internal/models"
)

// StudentListQuery filters the per-student table.
type StudentListQuery struct {
	Search string   `form:"search" validate:"omitempty,max=100"`
	Below  *float64 `form:"below" validate:"omitempty,gte=0,lte=100"`
}

// LowAttendanceQuery selects students strictly below a threshold.
type LowAttendanceQuery struct {
	Threshold *float64 `form:"threshold" json:"threshold" validate:"omitempty,gte=0,lte=100"`
}

// LowAttendanceResponse lists students below the applied threshold.
type LowAttendanceResponse struct {
	Threshold float64                    `json:"threshold"`
	Students  []models.StudentAttendance `json:"students"`
}

// AlertDispatchRequest triggers low attendance notifications.
type AlertDispatchRequest struct {
	Threshold  *float64 `json:"threshold" validate:"omitempty,gte=0,lte=100"`
	StudentIDs []string `json:"student_ids" validate:"omitempty,max=500,dive,required"`
}

// AlertDispatchResponse summarises queued alerts.
type AlertDispatchResponse struct {
	Threshold float64                  `json:"threshold"`
	Queued    int                      `json:"queued"`
	Failed    int                      `json:"failed"`
	Alerts    []models.AttendanceAlert `json:"alerts"`
}

// AlertHistoryQuery pages through recorded alerts.
type AlertHistoryQuery struct {
	Status string `form:"status" validate:"omitempty,oneof=QUEUED SENT SKIPPED FAILED"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=500"`
}

// ExportRequest asks for a rendered report table.
type ExportRequest struct {
	Format  models.ExportFormat `json:"format" validate:"required,oneof=csv pdf xlsx"`
	Section string              `json:"section" validate:"omitempty,oneof=students daily_trend subjects low_attendance"`
	// Threshold applies to the low_attendance section only.
	Threshold *float64 `json:"threshold" validate:"omitempty,gte=0,lte=100"`
}

// ExportResponse points to the stored export.
type ExportResponse struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	Format    string    `json:"format"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
