package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-insights-api/internal/dto"
	"github.com/noah-isme/attendance-insights-api/internal/models"
	"github.com/noah-isme/attendance-insights-api/internal/repository"
	appErrors "github.com/noah-isme/attendance-insights-api/pkg/errors"
	"github.com/noah-isme/attendance-insights-api/pkg/jobs"
	"github.com/noah-isme/attendance-insights-api/pkg/mailer"
)

// AlertJobType tags queue jobs carrying an alert id.
const AlertJobType = "attendance_alert"

const defaultLowThreshold = 75.0

type alertStore interface {
	Create(ctx context.Context, alert *models.AttendanceAlert) error
	GetByID(ctx context.Context, id string) (*models.AttendanceAlert, error)
	Update(ctx context.Context, id string, params repository.UpdateAlertParams) error
	List(ctx context.Context, status models.AlertStatus, limit int) ([]models.AttendanceAlert, error)
	ListQueued(ctx context.Context, limit int) ([]models.AttendanceAlert, error)
}

type reportProvider interface {
	Report(ctx context.Context) (*models.AggregateReport, bool, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// Notifier delivers alert messages.
type Notifier interface {
	Configured() bool
	Send(ctx context.Context, msg mailer.Message) error
}

// AlertServiceConfig configures thresholds and the alert recipient.
type AlertServiceConfig struct {
	Enabled          bool
	DefaultThreshold float64
	AdminEmail       string
}

// AlertService finds students below the attendance threshold and queues notifications for them.
type AlertService struct {
	reports   reportProvider
	repo      alertStore
	queue     jobDispatcher
	metrics   *MetricsService
	validator *validator.Validate
	cfg       AlertServiceConfig
	logger    *zap.Logger
}

// NewAlertService constructs the alert service.
func NewAlertService(reports reportProvider, repo alertStore, queue jobDispatcher, metrics *MetricsService, validate *validator.Validate, cfg AlertServiceConfig, logger *zap.Logger) *AlertService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultThreshold <= 0 || cfg.DefaultThreshold > 100 {
		cfg.DefaultThreshold = defaultLowThreshold
	}
	return &AlertService{
		reports:   reports,
		repo:      repo,
		queue:     queue,
		metrics:   metrics,
		validator: validate,
		cfg:       cfg,
		logger:    logger,
	}
}

// LowAttendance lists students strictly below the threshold, in report order.
func (s *AlertService) LowAttendance(ctx context.Context, query dto.LowAttendanceQuery) (*dto.LowAttendanceResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "threshold must be between 0 and 100")
	}
	threshold := s.threshold(query.Threshold)
	report, _, err := s.reports.Report(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.LowAttendanceResponse{Threshold: threshold, Students: report.BelowThreshold(threshold)}, nil
}

// Dispatch records one QUEUED alert per low attendance student and enqueues its delivery. An alert that
// cannot be enqueued is marked FAILED and the rest are still attempted; the partial response is returned
// together with the error.
func (s *AlertService) Dispatch(ctx context.Context, req dto.AlertDispatchRequest) (*dto.AlertDispatchResponse, error) {
	if !s.enabled() {
		return nil, appErrors.Clone(appErrors.ErrServiceDisabled, "attendance alerts are disabled")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid alert request")
	}
	low, err := s.LowAttendance(ctx, dto.LowAttendanceQuery{Threshold: req.Threshold})
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(req.StudentIDs))
	for _, id := range req.StudentIDs {
		wanted[strings.TrimSpace(id)] = struct{}{}
	}

	resp := &dto.AlertDispatchResponse{Threshold: low.Threshold, Alerts: make([]models.AttendanceAlert, 0, len(low.Students))}
	seen := make(map[string]struct{}, len(low.Students))
	var enqueueErr error
	for _, student := range low.Students {
		if _, dup := seen[student.StudentID]; dup {
			continue
		}
		if _, ok := wanted[student.StudentID]; len(wanted) > 0 && !ok {
			continue
		}
		seen[student.StudentID] = struct{}{}

		alert := &models.AttendanceAlert{
			StudentID:   student.StudentID,
			StudentName: student.Name,
			Percentage:  student.AttendancePercentage,
			Threshold:   low.Threshold,
			Status:      models.AlertStatusQueued,
		}
		if err := s.repo.Create(ctx, alert); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record alert")
		}
		if err := s.queue.Enqueue(jobs.Job{ID: alert.ID, Type: AlertJobType}); err != nil {
			s.markFailed(ctx, alert.ID, "failed to enqueue alert")
			s.logger.Warn("failed to enqueue alert", zap.String("alert_id", alert.ID), zap.Error(err))
			if enqueueErr == nil {
				enqueueErr = err
			}
			resp.Failed++
			continue
		}
		resp.Alerts = append(resp.Alerts, *alert)
	}
	resp.Queued = len(resp.Alerts)
	s.logger.Info("attendance alerts queued", zap.Int("queued", resp.Queued), zap.Int("failed", resp.Failed), zap.Float64("threshold", low.Threshold))
	if enqueueErr != nil {
		// Alerts that did queue are delivered regardless, so the caller still gets them.
		failure := appErrors.WithDetails(appErrors.ErrInternal, "failed to enqueue alert", resp)
		failure.Err = enqueueErr
		return resp, failure
	}
	return resp, nil
}

// History lists recorded alerts, newest first.
func (s *AlertService) History(ctx context.Context, query dto.AlertHistoryQuery) ([]models.AttendanceAlert, error) {
	if !s.enabled() {
		return nil, appErrors.Clone(appErrors.ErrServiceDisabled, "attendance alerts are disabled")
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid alert history query")
	}
	start := time.Now()
	alerts, err := s.repo.List(ctx, models.AlertStatus(query.Status), query.Limit)
	s.metrics.ObserveDBQuery("alerts_list", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list alerts")
	}
	return alerts, nil
}

// RecoverPending replays alerts left QUEUED by a previous process.
func (s *AlertService) RecoverPending(ctx context.Context) {
	if !s.enabled() {
		return
	}
	pending, err := s.repo.ListQueued(ctx, 100)
	if err != nil {
		s.logger.Warn("failed to recover queued alerts", zap.Error(err))
		return
	}
	for _, alert := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: alert.ID, Type: AlertJobType}); err != nil {
			s.logger.Warn("failed to requeue alert", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}
}

func (s *AlertService) enabled() bool {
	return s.cfg.Enabled && s.repo != nil && s.queue != nil
}

func (s *AlertService) threshold(requested *float64) float64 {
	if requested == nil {
		return s.cfg.DefaultThreshold
	}
	return *requested
}

func (s *AlertService) markFailed(ctx context.Context, id, message string) {
	status := models.AlertStatusFailed
	if err := s.repo.Update(ctx, id, repository.UpdateAlertParams{Status: &status, ErrorMessage: &message}); err != nil {
		s.logger.Warn("failed to mark alert failed", zap.String("alert_id", id), zap.Error(err))
	}
}

// AlertWorker bridges queue jobs to the notifier.
type AlertWorker struct {
	repo       alertStore
	notifier   Notifier
	metrics    *MetricsService
	adminEmail string
	logger     *zap.Logger
}

// NewAlertWorker constructs a worker. A nil notifier marks every alert SKIPPED.
func NewAlertWorker(repo alertStore, notifier Notifier, metrics *MetricsService, adminEmail string, logger *zap.Logger) *AlertWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertWorker{repo: repo, notifier: notifier, metrics: metrics, adminEmail: strings.TrimSpace(adminEmail), logger: logger}
}

// Handle delivers one alert. A returned error makes the queue retry the job.
func (w *AlertWorker) Handle(ctx context.Context, job jobs.Job) error {
	alert, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.logger.Warn("alert vanished before delivery", zap.String("alert_id", job.ID))
			return nil
		}
		return err
	}
	if alert.Status != models.AlertStatusQueued {
		return nil
	}

	if w.adminEmail == "" || w.notifier == nil || !w.notifier.Configured() {
		return w.finish(ctx, alert, models.AlertStatusSkipped, nil, "no mail configuration")
	}

	recipient := w.adminEmail
	if err := w.notifier.Send(ctx, alertMessage(recipient, alert)); err != nil {
		w.logger.Warn("alert delivery failed", zap.String("alert_id", alert.ID), zap.Int("attempt", job.Attempt+1), zap.Error(err))
		return err
	}
	return w.finish(ctx, alert, models.AlertStatusSent, &recipient, "")
}

// GiveUp records a FAILED outcome once the queue has exhausted retries.
func (w *AlertWorker) GiveUp(ctx context.Context, job jobs.Job, cause error) {
	alert := &models.AttendanceAlert{ID: job.ID}
	if err := w.finish(ctx, alert, models.AlertStatusFailed, nil, cause.Error()); err != nil {
		w.logger.Error("failed to record alert failure", zap.String("alert_id", job.ID), zap.Error(err))
	}
}

func (w *AlertWorker) finish(ctx context.Context, alert *models.AttendanceAlert, status models.AlertStatus, recipient *string, message string) error {
	params := repository.UpdateAlertParams{Status: &status, Recipient: recipient}
	if message != "" {
		params.ErrorMessage = &message
	}
	start := time.Now()
	err := w.repo.Update(ctx, alert.ID, params)
	w.metrics.ObserveDBQuery("alerts_update", time.Since(start))
	if err != nil {
		return fmt.Errorf("record alert %s: %w", status, err)
	}
	w.metrics.RecordAlert(status)
	w.logger.Info("attendance alert processed", zap.String("alert_id", alert.ID), zap.String("status", string(status)))
	return nil
}

func alertMessage(recipient string, alert *models.AttendanceAlert) mailer.Message {
	body := fmt.Sprintf(
		"Low Attendance Alert\n\nStudent: %s (%s)\nCurrent attendance: %.1f%%\nThreshold: %.1f%%\n\n"+
			"Please follow up with the student to avoid academic penalties.\n\n-- Attendance Insights",
		alert.StudentName, alert.StudentID, alert.Percentage, alert.Threshold,
	)
	return mailer.Message{
		To:      []string{recipient},
		Subject: fmt.Sprintf("Low Attendance Warning: %d%%", int(math.Floor(alert.Percentage))),
		Body:    body,
	}
}
