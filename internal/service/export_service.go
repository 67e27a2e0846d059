package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-insights-api/internal/dto"
	"github.com/noah-isme/attendance-insights-api/internal/models"
	appErrors "github.com/noah-isme/attendance-insights-api/pkg/errors"
	"github.com/noah-isme/attendance-insights-api/pkg/export"
	"github.com/noah-isme/attendance-insights-api/pkg/storage"
)

// Export sections.
const (
	ExportSectionStudents      = "students"
	ExportSectionDailyTrend    = "daily_trend"
	ExportSectionSubjects      = "subjects"
	ExportSectionLowAttendance = "low_attendance"
)

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (io.ReadCloser, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix        string
	DefaultThreshold float64
}

// ExportDownload is a resolved export ready to stream.
type ExportDownload struct {
	Content     io.ReadCloser
	FileName    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders report tables and persists them behind signed download links.
type ExportService struct {
	reports   reportProvider
	storage   exportStorage
	signer    *storage.SignedURLSigner
	renderers map[models.ExportFormat]export.Renderer
	validator *validator.Validate
	cfg       ExportConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService with csv, pdf and xlsx renderers.
func NewExportService(reports reportProvider, store exportStorage, signer *storage.SignedURLSigner, validate *validator.Validate, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.DefaultThreshold <= 0 || cfg.DefaultThreshold > 100 {
		cfg.DefaultThreshold = defaultLowThreshold
	}
	return &ExportService{
		reports: reports,
		storage: store,
		signer:  signer,
		renderers: map[models.ExportFormat]export.Renderer{
			models.ExportFormatCSV:  export.NewCSVExporter(),
			models.ExportFormatPDF:  export.NewPDFExporter(),
			models.ExportFormatXLSX: export.NewXLSXExporter(),
		},
		validator: validate,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Create renders the requested section of the current report and returns a signed link to it.
func (s *ExportService) Create(ctx context.Context, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceDisabled, "exports are not configured")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	if req.Section == "" {
		req.Section = ExportSectionStudents
	}
	renderer := s.renderers[req.Format]

	report, _, err := s.reports.Report(ctx)
	if err != nil {
		return nil, err
	}
	dataset := s.buildDataset(report, req)
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	id := uuid.NewString()
	filename := fmt.Sprintf("attendance_%s_%s_%s.%s", req.Section, s.now().UTC().Format("20060102T150405"), id[:8], renderer.Extension())
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(id, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("attendance export created", zap.String("file", relPath), zap.String("format", string(req.Format)), zap.Int("rows", len(dataset.Rows)))
	return &dto.ExportResponse{
		ID:        id,
		FileName:  relPath,
		Format:    string(req.Format),
		URL:       fmt.Sprintf("%s/export/%s", prefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// ResolveDownload validates a token and opens the export it points to.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	if s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceDisabled, "exports are not configured")
	}
	file, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "invalid download link")
	}
	content, err := s.storage.Open(file.Path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	contentType := "application/octet-stream"
	if r, ok := s.renderers[models.ExportFormat(strings.TrimPrefix(filepath.Ext(file.Path), "."))]; ok {
		contentType = r.ContentType()
	}
	return &ExportDownload{
		Content:     content,
		FileName:    filepath.Base(file.Path),
		ContentType: contentType,
		ExpiresAt:   file.ExpiresAt,
	}, nil
}

// StartCleanup purges exports older than the link lifetime until ctx is done.
func (s *ExportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.storage == nil || s.signer == nil {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

func (s *ExportService) cleanup() {
	deleted, err := s.storage.CleanupOlderThan(s.signer.TTL())
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(deleted)))
	}
}

func (s *ExportService) buildDataset(report *models.AggregateReport, req dto.ExportRequest) export.Dataset {
	switch req.Section {
	case ExportSectionDailyTrend:
		rows := make([][]string, 0, len(report.DailyTrend))
		for _, point := range report.DailyTrend {
			rows = append(rows, []string{point.Date, strconv.Itoa(point.Attendance)})
		}
		return export.Dataset{Title: "Daily Attendance Trend", Headers: []string{"Date", "Students Present"}, Rows: rows}
	case ExportSectionSubjects:
		rows := make([][]string, 0, len(report.SubjectSummary))
		for _, subject := range report.SubjectSummary {
			rows = append(rows, []string{subject.Subject, strconv.Itoa(subject.PresentStudents)})
		}
		return export.Dataset{Title: "Subject Summary", Headers: []string{"Subject", "Students Present"}, Rows: rows}
	case ExportSectionLowAttendance:
		threshold := s.cfg.DefaultThreshold
		if req.Threshold != nil {
			threshold = *req.Threshold
		}
		return studentDataset(fmt.Sprintf("Attendance Below %s%%", formatPercent(threshold)), report.BelowThreshold(threshold))
	default:
		return studentDataset("Student Attendance", report.Students)
	}
}

func studentDataset(title string, students []models.StudentAttendance) export.Dataset {
	rows := make([][]string, 0, len(students))
	for _, st := range students {
		rows = append(rows, []string{
			st.StudentID,
			st.Name,
			strconv.Itoa(st.PresentCount),
			strconv.Itoa(st.TotalClasses),
			formatPercent(st.AttendancePercentage),
		})
	}
	return export.Dataset{
		Title:   title,
		Headers: []string{"Student ID", "Name", "Present", "Total Classes", "Attendance %"},
		Rows:    rows,
	}
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
