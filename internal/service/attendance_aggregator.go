package service

import (
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-insights-api/internal/models"
)

const defaultPresenceKeyword = "present"

// AggregatorConfig tunes the attendance aggregator.
type AggregatorConfig struct {
	// PresenceKeyword is matched as a case-insensitive substring of the status column.
	PresenceKeyword string
}

// AttendanceAggregator reconciles session sources into an attendance report. It holds no mutable
// state, so one instance may serve concurrent callers.
type AttendanceAggregator struct {
	cfg    AggregatorConfig
	logger *zap.Logger
}

// NewAttendanceAggregator constructs an aggregator.
func NewAttendanceAggregator(cfg AggregatorConfig, logger *zap.Logger) *AttendanceAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.PresenceKeyword = strings.ToLower(strings.TrimSpace(cfg.PresenceKeyword))
	if cfg.PresenceKeyword == "" {
		cfg.PresenceKeyword = defaultPresenceKeyword
	}
	return &AttendanceAggregator{cfg: cfg, logger: logger}
}

// Aggregate merges the sources, deduplicates sessions and derives the report.
// It fails with a *SchemaError when the union schema lacks a required column and with
// errors.ErrEmptyInput when there are no sources or no valid rows. Inputs are never modified.
func (a *AttendanceAggregator) Aggregate(sources []models.SourceTable) (*models.AggregateReport, error) {
	if len(sources) == 0 {
		return nil, errNoSources()
	}

	ingested, err := a.ingest(sources)
	if err != nil {
		return nil, err
	}
	if len(ingested.records) == 0 {
		return nil, errNoValidRows(ingested.dropped)
	}

	report := derive(a.resolve(ingested.records))
	report.SourceCount = len(sources)
	report.RowsIngested = len(ingested.records)
	report.RowsDropped = ingested.dropped

	if ingested.dropped > 0 {
		a.logger.Warn("attendance rows dropped", zap.Int("dropped", ingested.dropped), zap.Int("total", ingested.total))
	}
	a.logger.Debug("attendance aggregated",
		zap.Int("sources", report.SourceCount),
		zap.Int("students", report.TotalStudents),
		zap.Int("classes", report.TotalClasses),
	)
	return report, nil
}
