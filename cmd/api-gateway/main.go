package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/noah-isme/attendance-insights-api/api/swagger"
	"github.com/noah-isme/attendance-insights-api/internal/handler"
	"github.com/noah-isme/attendance-insights-api/internal/repository"
	"github.com/noah-isme/attendance-insights-api/internal/service"
	"github.com/noah-isme/attendance-insights-api/pkg/cache"
	"github.com/noah-isme/attendance-insights-api/pkg/config"
	"github.com/noah-isme/attendance-insights-api/pkg/database"
	"github.com/noah-isme/attendance-insights-api/pkg/jobs"
	"github.com/noah-isme/attendance-insights-api/pkg/logger"
	"github.com/noah-isme/attendance-insights-api/pkg/mailer"
	"github.com/noah-isme/attendance-insights-api/pkg/storage"
)

// @title Attendance Insights API
// @version 1.0.0
// @description Aggregates uploaded attendance session sheets into per-student, daily and subject reports.
// @BasePath /api/v1
// @schemes http

const (
	alertQueueBuffer      = 64
	exportCleanupInterval = time.Hour
	shutdownTimeout       = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	checks := make(map[string]handler.ReadinessCheck)

	sourceStore, err := storage.NewLocalStorage(cfg.Sources.StorageDir)
	if err != nil {
		return fmt.Errorf("init source storage: %w", err)
	}
	checks["sources"] = func(context.Context) error {
		_, err := sourceStore.List()
		return err
	}

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return fmt.Errorf("init export storage: %w", err)
	}

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("report cache disabled, redis unavailable", zap.Error(err))
		} else {
			redisCache := repository.NewCacheRepository(client)
			defer redisCache.Close() //nolint:errcheck
			cacheRepo = redisCache
			checks["redis"] = redisCache.Ping
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, "attendance", cfg.Cache.TTL, logr.Named("cache"), cfg.Cache.Enabled)

	aggregator := service.NewAttendanceAggregator(service.AggregatorConfig{}, logr.Named("aggregator"))
	reportSvc := service.NewAttendanceReportService(sourceStore, aggregator, cacheSvc, metrics, service.ReportServiceConfig{
		LoadConcurrency: cfg.Sources.LoadConcurrency,
		CacheTTL:        cfg.Cache.TTL,
	}, logr.Named("report"))
	sourceSvc := service.NewSourceService(sourceStore, reportSvc, service.SourceServiceConfig{
		MaxFileSizeBytes: cfg.Sources.MaxFileSizeBytes,
		SubjectAliases:   cfg.Attendance.SubjectAliases,
	}, logr.Named("sources"))

	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(reportSvc, exportStore, signer, validate, service.ExportConfig{
		APIPrefix:        cfg.APIPrefix,
		DefaultThreshold: cfg.Attendance.LowThreshold,
	}, logr.Named("exports"))
	exportSvc.StartCleanup(ctx, exportCleanupInterval)

	alertCfg := service.AlertServiceConfig{
		Enabled:          cfg.Alerts.Enabled,
		DefaultThreshold: cfg.Attendance.LowThreshold,
		AdminEmail:       cfg.Alerts.AdminEmail,
	}
	alertSvc, stopAlerts, err := buildAlerts(ctx, cfg, reportSvc, metrics, validate, alertCfg, checks, logr)
	if err != nil {
		return err
	}
	defer stopAlerts()

	r := newRouter(cfg, routerDeps{
		logger:     logr,
		metrics:    metrics,
		attendance: handler.NewAttendanceHandler(reportSvc, alertSvc),
		sources:    handler.NewSourceHandler(sourceSvc),
		alerts:     handler.NewAlertHandler(alertSvc),
		exports:    handler.NewExportHandler(exportSvc),
		probes:     handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildAlerts wires the alert history database and delivery queue. Without a database the
// service is returned disabled and every alert endpoint answers 503.
func buildAlerts(
	ctx context.Context,
	cfg *config.Config,
	reports *service.AttendanceReportService,
	metrics *service.MetricsService,
	validate *validator.Validate,
	alertCfg service.AlertServiceConfig,
	checks map[string]handler.ReadinessCheck,
	logr *zap.Logger,
) (*service.AlertService, func(), error) {
	noop := func() {}
	if !cfg.Alerts.Enabled || !cfg.Database.Enabled {
		return service.NewAlertService(reports, nil, nil, metrics, validate, alertCfg, logr.Named("alerts")), noop, nil
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, noop, fmt.Errorf("connect database: %w", err)
	}
	checks["database"] = func(ctx context.Context) error { return db.PingContext(ctx) }

	repo := repository.NewAlertRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, noop, fmt.Errorf("prepare alert schema: %w", err)
	}

	notifier := mailer.NewSMTPMailer(cfg.SMTP, logr.Named("mailer"))
	if !notifier.Configured() {
		logr.Warn("smtp not configured, alerts will be recorded as SKIPPED")
	}
	worker := service.NewAlertWorker(repo, notifier, metrics, cfg.Alerts.AdminEmail, logr.Named("alert-worker"))
	queue := jobs.NewQueue("attendance-alerts", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Alerts.Workers,
		BufferSize: alertQueueBuffer,
		MaxRetries: cfg.Alerts.Retries,
		RetryDelay: cfg.Alerts.RetryDelay,
		OnGiveUp:   worker.GiveUp,
		Logger:     logr.Named("queue"),
	})
	queue.Start(ctx)

	svc := service.NewAlertService(reports, repo, queue, metrics, validate, alertCfg, logr.Named("alerts"))
	svc.RecoverPending(ctx)

	return svc, func() { queue.Stop(); closeDB(db, logr) }, nil
}

func closeDB(db *sqlx.DB, logr *zap.Logger) {
	if err := db.Close(); err != nil {
		logr.Warn("failed to close database", zap.Error(err))
	}
}
