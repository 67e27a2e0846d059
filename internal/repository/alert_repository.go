package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-insights-api/internal/models"
)

const alertColumns = `id, student_id, student_name, percentage, threshold, recipient, status, error_message, created_at, updated_at`

const alertSchema = `CREATE TABLE IF NOT EXISTS attendance_alerts (
	id UUID PRIMARY KEY,
	student_id TEXT NOT NULL,
	student_name TEXT NOT NULL,
	percentage NUMERIC(5,1) NOT NULL,
	threshold NUMERIC(5,1) NOT NULL,
	recipient TEXT NULL,
	status TEXT NOT NULL,
	error_message TEXT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// AlertRepository persists low attendance alert outcomes.
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository constructs the repository.
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// EnsureSchema creates the alerts table when missing.
func (r *AlertRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, alertSchema); err != nil {
		return fmt.Errorf("ensure attendance_alerts schema: %w", err)
	}
	return nil
}

// Create inserts a new alert row with generated defaults.
func (r *AlertRepository) Create(ctx context.Context, alert *models.AttendanceAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Status == "" {
		alert.Status = models.AlertStatusQueued
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	alert.UpdatedAt = alert.CreatedAt
	const query = `INSERT INTO attendance_alerts (` + alertColumns + `)
VALUES (:id, :student_id, :student_name, :percentage, :threshold, :recipient, :status, :error_message, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, alert); err != nil {
		return fmt.Errorf("create attendance alert: %w", err)
	}
	return nil
}

// GetByID returns an alert row by its identifier.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.AttendanceAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM attendance_alerts WHERE id = $1`
	var alert models.AttendanceAlert
	if err := r.db.GetContext(ctx, &alert, query, id); err != nil {
		return nil, fmt.Errorf("get attendance alert: %w", err)
	}
	return &alert, nil
}

// UpdateAlertParams defines the mutable fields.
type UpdateAlertParams struct {
	Status       *models.AlertStatus
	Recipient    *string
	ErrorMessage *string
}

// Update persists the provided changes and bumps updated_at.
func (r *AlertRepository) Update(ctx context.Context, id string, params UpdateAlertParams) error {
	set := make([]string, 0, 4)
	args := make([]interface{}, 0, 5)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.Recipient != nil {
		set = append(set, fmt.Sprintf("recipient = $%d", argPos))
		args = append(args, *params.Recipient)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if len(set) == 0 {
		return nil
	}
	set = append(set, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now().UTC())
	argPos++

	query := fmt.Sprintf("UPDATE attendance_alerts SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update attendance alert: %w", err)
	}
	return nil
}

// List returns the most recent alerts, optionally filtered by status.
func (r *AlertRepository) List(ctx context.Context, status models.AlertStatus, limit int) ([]models.AttendanceAlert, error) {
	if limit <= 0 {
		limit = 50
	}
	alerts := make([]models.AttendanceAlert, 0)
	if status == "" {
		query := `SELECT ` + alertColumns + ` FROM attendance_alerts ORDER BY created_at DESC LIMIT $1`
		if err := r.db.SelectContext(ctx, &alerts, query, limit); err != nil {
			return nil, fmt.Errorf("list attendance alerts: %w", err)
		}
		return alerts, nil
	}
	query := `SELECT ` + alertColumns + ` FROM attendance_alerts WHERE status = $1 ORDER BY created_at DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &alerts, query, status, limit); err != nil {
		return nil, fmt.Errorf("list attendance alerts: %w", err)
	}
	return alerts, nil
}

// ListQueued fetches alerts still waiting for delivery (used for cold start recovery).
func (r *AlertRepository) ListQueued(ctx context.Context, limit int) ([]models.AttendanceAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + alertColumns + ` FROM attendance_alerts WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var alerts []models.AttendanceAlert
	if err := r.db.SelectContext(ctx, &alerts, query, limit); err != nil {
		return nil, fmt.Errorf("list queued attendance alerts: %w", err)
	}
	return alerts, nil
}
