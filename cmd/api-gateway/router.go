package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-insights-api/internal/handler"
	internalmiddleware "github.com/noah-isme/attendance-insights-api/internal/middleware"
	"github.com/noah-isme/attendance-insights-api/internal/service"
	"github.com/noah-isme/attendance-insights-api/pkg/config"
	"github.com/noah-isme/attendance-insights-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/attendance-insights-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/attendance-insights-api/pkg/middleware/requestid"
)

type routerDeps struct {
	logger     *zap.Logger
	metrics    *service.MetricsService
	attendance *handler.AttendanceHandler
	sources    *handler.SourceHandler
	alerts     *handler.AlertHandler
	exports    *handler.ExportHandler
	probes     *handler.MetricsHandler
}

func newRouter(cfg *config.Config, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(deps.metrics, "/metrics", "/health", "/ready"))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", deps.probes.Health)
	r.GET("/ready", deps.probes.Ready)
	r.GET("/metrics", deps.probes.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	attendance := api.Group("/attendance")
	attendance.GET("/report", deps.attendance.Report)
	attendance.GET("/overview", deps.attendance.Overview)
	attendance.GET("/students", deps.attendance.Students)
	attendance.GET("/low", deps.attendance.LowAttendance)

	attendance.POST("/sources", deps.sources.Upload)
	attendance.GET("/sources", deps.sources.List)
	attendance.DELETE("/sources/:name", deps.sources.Delete)

	attendance.POST("/alerts", deps.alerts.Dispatch)
	attendance.GET("/alerts", deps.alerts.History)

	attendance.POST("/exports", deps.exports.Create)
	api.GET("/export/:token", deps.exports.Download)

	return r
}
