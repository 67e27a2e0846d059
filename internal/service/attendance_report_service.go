package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/attendance-insights-api/internal/models"
	appErrors "github.com/noah-isme/attendance-insights-api/pkg/errors"
	"github.com/noah-isme/attendance-insights-api/pkg/storage"
	"github.com/noah-isme/attendance-insights-api/pkg/tabular"
)

const reportCachePrefix = "report"

// SourceStore lists and opens stored session files.
type SourceStore interface {
	List() ([]storage.FileInfo, error)
	Open(name string) (io.ReadCloser, error)
}

// ReportServiceConfig tunes source loading and caching.
type ReportServiceConfig struct {
	LoadConcurrency int
	CacheTTL        time.Duration
}

// AttendanceReportService loads stored sources, aggregates them and caches the result.
type AttendanceReportService struct {
	store      SourceStore
	aggregator *AttendanceAggregator
	cache      *CacheService
	metrics    *MetricsService
	cfg        ReportServiceConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewAttendanceReportService constructs the report service.
func NewAttendanceReportService(store SourceStore, aggregator *AttendanceAggregator, cache *CacheService, metrics *MetricsService, cfg ReportServiceConfig, logger *zap.Logger) *AttendanceReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if aggregator == nil {
		aggregator = NewAttendanceAggregator(AggregatorConfig{}, logger)
	}
	if cfg.LoadConcurrency <= 0 {
		cfg.LoadConcurrency = 4
	}
	return &AttendanceReportService{
		store:      store,
		aggregator: aggregator,
		cache:      cache,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Report returns the aggregate report over every stored source and whether it came from cache.
func (s *AttendanceReportService) Report(ctx context.Context) (*models.AggregateReport, bool, error) {
	files, err := s.sourceFiles()
	if err != nil {
		return nil, false, err
	}

	var key string
	if s.cache.Enabled() && len(files) > 0 {
		key = s.cache.Key(reportCachePrefix, fingerprint(files))
		var cached models.AggregateReport
		if s.cache.Get(ctx, key, &cached) {
			return &cached, true, nil
		}
	}

	start := time.Now()
	sources, err := s.load(ctx, files)
	if err != nil {
		s.metrics.ObserveAggregation(nil, time.Since(start))
		return nil, false, err
	}
	report, err := s.aggregator.Aggregate(sources)
	s.metrics.ObserveAggregation(report, time.Since(start))
	if err != nil {
		return nil, false, err
	}
	report.GeneratedAt = s.now().UTC()

	if key != "" {
		s.cache.Set(ctx, key, report, s.cfg.CacheTTL)
	}
	return report, false, nil
}

// Overview returns the class overview over every stored source and whether it came from cache. It shares
// the report cache namespace, so Invalidate drops both.
func (s *AttendanceReportService) Overview(ctx context.Context) (*models.ClassOverview, bool, error) {
	files, err := s.sourceFiles()
	if err != nil {
		return nil, false, err
	}

	var key string
	if s.cache.Enabled() && len(files) > 0 {
		key = s.cache.Key(reportCachePrefix, "overview", fingerprint(files))
		var cached models.ClassOverview
		if s.cache.Get(ctx, key, &cached) {
			return &cached, true, nil
		}
	}

	sources, err := s.load(ctx, files)
	if err != nil {
		return nil, false, err
	}
	overview, err := s.aggregator.Overview(sources)
	if err != nil {
		return nil, false, err
	}
	overview.GeneratedAt = s.now().UTC()

	if key != "" {
		s.cache.Set(ctx, key, overview, s.cfg.CacheTTL)
	}
	return overview, false, nil
}

// Invalidate drops cached reports; called whenever the stored sources change.
func (s *AttendanceReportService) Invalidate(ctx context.Context) {
	s.cache.Invalidate(ctx, reportCachePrefix)
}

// sourceFiles lists stored files with a readable extension.
func (s *AttendanceReportService) sourceFiles() ([]storage.FileInfo, error) {
	if s.store == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceDisabled, "source storage not configured")
	}
	files, err := s.store.List()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sources")
	}
	supported := make([]storage.FileInfo, 0, len(files))
	for _, f := range files {
		if _, err := tabular.DetectFormat(f.Name); err != nil {
			s.logger.Debug("skip unsupported source", zap.String("file", f.Name))
			continue
		}
		supported = append(supported, f)
	}
	return supported, nil
}

// load reads the files concurrently while keeping their listed order.
func (s *AttendanceReportService) load(ctx context.Context, files []storage.FileInfo) ([]models.SourceTable, error) {
	sources := make([]models.SourceTable, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.LoadConcurrency)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			table, err := s.readSource(file.Name)
			if err != nil {
				return err
			}
			sources[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}

func (s *AttendanceReportService) readSource(name string) (models.SourceTable, error) {
	rc, err := s.store.Open(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.SourceTable{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("source %s disappeared", name))
		}
		return models.SourceTable{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open source")
	}
	defer rc.Close() //nolint:errcheck

	table, err := tabular.Read(name, rc)
	if err != nil {
		s.logger.Warn("unreadable source", zap.String("file", name), zap.Error(err))
		return models.SourceTable{}, appErrors.WithDetails(appErrors.ErrValidation, "source file could not be parsed", map[string]interface{}{
			"file":  name,
			"cause": err.Error(),
		})
	}
	return table, nil
}

// fingerprint hashes the listing so any upload, replacement or deletion yields a new cache key.
func fingerprint(files []storage.FileInfo) string {
	h := sha256.New()
	for _, f := range files {
		_, _ = io.WriteString(h, f.Name)
		_, _ = io.WriteString(h, "|"+strconv.FormatInt(f.Size, 10))
		_, _ = io.WriteString(h, "|"+strconv.FormatInt(f.ModTime.UnixNano(), 10)+"\n")
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}
