package models

import "time"

// Canonical column names every merged session table must provide.
const (
	ColumnDate        = "date"
	ColumnSubject     = "subject"
	ColumnStudentName = "student name"
	ColumnStudentID   = "student id"
	ColumnStatus      = "status"

	// ColumnBatch is optional; the class overview falls back to the file name when it is absent.
	ColumnBatch = "batch"
)

// RequiredColumns lists the canonical columns in reporting order.
var RequiredColumns = []string{ColumnDate, ColumnSubject, ColumnStudentName, ColumnStudentID, ColumnStatus}

// SourceTable is one tabular session source: a header and rows of raw cell text.
// Rows may be shorter than the header; the missing cells are treated as null.
type SourceTable struct {
	Name   string     `json:"name"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// SessionRecord is one normalized attendance row.
type SessionRecord struct {
	Date        time.Time `json:"date"`
	Subject     string    `json:"subject"`
	StudentName string    `json:"student_name"`
	StudentID   string    `json:"student_id"`
	Status      string    `json:"status"`
}

// StudentAttendance is the derived attendance of one student identity.
type StudentAttendance struct {
	Name                 string  `json:"name"`
	StudentID            string  `json:"student_id"`
	PresentCount         int     `json:"present_count"`
	TotalClasses         int     `json:"total_classes"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

// DailyTrendPoint counts distinct students present on a calendar day.
type DailyTrendPoint struct {
	Date       string `json:"date"`
	Attendance int    `json:"attendance"`
}

// SubjectSummary counts distinct students ever present in a subject.
type SubjectSummary struct {
	Subject         string `json:"subject"`
	PresentStudents int    `json:"present_students"`
}

// AggregateReport is the full output of one aggregation run.
type AggregateReport struct {
	Students         []StudentAttendance `json:"students"`
	DailyTrend       []DailyTrendPoint   `json:"daily_trend"`
	SubjectSummary   []SubjectSummary    `json:"subject_summary"`
	TotalStudents    int                 `json:"total_students"`
	TotalDays        int                 `json:"total_days"`
	TotalClasses     int                 `json:"total_classes"`
	AvgAttendancePct float64             `json:"avg_attendance_pct"`
	SourceCount      int                 `json:"source_count"`
	RowsIngested     int                 `json:"rows_ingested"`
	RowsDropped      int                 `json:"rows_dropped"`
	GeneratedAt      time.Time           `json:"generated_at"`
}

// SubjectOverview is the attendance of one source file against the class roster.
type SubjectOverview struct {
	Source          string  `json:"source"`
	Subject         string  `json:"subject"`
	Batch           string  `json:"batch"`
	PresentStudents int     `json:"present_students"`
	Attendance      float64 `json:"attendance"`
}

// OverviewTrendPoint is the mean number of present rows per month of one subject and batch.
type OverviewTrendPoint struct {
	Month        string  `json:"month"`
	SubjectBatch string  `json:"subject_batch"`
	Attendance   float64 `json:"attendance"`
}

// ClassOverview summarises every source file against the class roster.
type ClassOverview struct {
	AvgAttendance  float64              `json:"avg_attendance"`
	TotalStudents  int                  `json:"total_students"`
	ActiveSubjects int                  `json:"active_subjects"`
	BestSubject    string               `json:"best_subject,omitempty"`
	BestBatch      string               `json:"best_batch,omitempty"`
	Subjects       []SubjectOverview    `json:"subjects"`
	Trend          []OverviewTrendPoint `json:"trend"`
	GeneratedAt    time.Time            `json:"generated_at"`
}

// BelowThreshold returns the students whose percentage is strictly below threshold, keeping report order.
func (r *AggregateReport) BelowThreshold(threshold float64) []StudentAttendance {
	if r == nil {
		return nil
	}
	result := make([]StudentAttendance, 0)
	for _, student := range r.Students {
		if student.AttendancePercentage < threshold {
			result = append(result, student)
		}
	}
	return result
}

// SourceMetadata describes a stored session file.
type SourceMetadata struct {
	FileName         string    `json:"file_name"`
	DisplayName      string    `json:"display_name"`
	Batch            string    `json:"batch"`
	Section          string    `json:"section"`
	Subject          string    `json:"subject"`
	SessionDate      string    `json:"session_date"`
	SizeBytes        int64     `json:"size_bytes"`
	Records          int       `json:"records"`
	Status           string    `json:"status"`
	UploadedAt       time.Time `json:"uploaded_at"`
	MetadataResolved bool      `json:"metadata_resolved"`
}

// Source statuses reported by the listing.
const (
	SourceStatusReady      = "ready"
	SourceStatusUnreadable = "unreadable"
)

// AlertStatus is the delivery outcome of a low attendance alert.
type AlertStatus string

const (
	AlertStatusQueued  AlertStatus = "QUEUED"
	AlertStatusSent    AlertStatus = "SENT"
	AlertStatusSkipped AlertStatus = "SKIPPED"
	AlertStatusFailed  AlertStatus = "FAILED"
)

// AttendanceAlert records one low attendance notification.
type AttendanceAlert struct {
	ID           string      `db:"id" json:"id"`
	StudentID    string      `db:"student_id" json:"student_id"`
	StudentName  string      `db:"student_name" json:"student_name"`
	Percentage   float64     `db:"percentage" json:"percentage"`
	Threshold    float64     `db:"threshold" json:"threshold"`
	Recipient    *string     `db:"recipient" json:"recipient,omitempty"`
	Status       AlertStatus `db:"status" json:"status"`
	ErrorMessage *string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// ExportFormat enumerates rendered report formats.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatXLSX ExportFormat = "xlsx"
)
