package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/attendance-insights-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestDuration     *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec
	cacheLatency        prometheus.Observer
	cacheWrite          prometheus.Observer
	cacheHitRatio       prometheus.Gauge
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	aggregationDuration *prometheus.HistogramVec
	rowsDropped         prometheus.Counter
	reportStudents      prometheus.Gauge
	reportAvgPct        prometheus.Gauge
	alertsTotal         *prometheus.CounterVec
	dbQueryDuration     *prometheus.HistogramVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	aggregationCount     uint64
	aggregationFailures  uint64
	aggregationTotalNs   uint64
	rowsDroppedCount     uint64
	alertsSent           uint64
	alertsSkipped        uint64
	alertsFailed         uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	aggregationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "attendance_aggregation_duration_seconds",
		Help:    "Duration of attendance aggregation runs including source loading",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	rowsDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_rows_dropped_total",
		Help: "Rows discarded because their date could not be parsed",
	})

	reportStudents := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_report_students",
		Help: "Distinct students in the latest aggregated report",
	})

	reportAvgPct := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_report_avg_pct",
		Help: "Average attendance percentage of the latest aggregated report",
	})

	alertsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_alerts_total",
		Help: "Low attendance alerts by delivery status",
	}, []string{"status"})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		aggregationDuration, rowsDropped, reportStudents, reportAvgPct, alertsTotal, dbQueryDuration, goroutines)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		cacheLatency:        cacheLatency,
		cacheWrite:          cacheWrite,
		cacheHitRatio:       cacheHitRatio,
		cacheHits:           cacheHits,
		cacheMisses:         cacheMisses,
		aggregationDuration: aggregationDuration,
		rowsDropped:         rowsDropped,
		reportStudents:      reportStudents,
		reportAvgPct:        reportAvgPct,
		alertsTotal:         alertsTotal,
		dbQueryDuration:     dbQueryDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveAggregation records one aggregation run. report is nil for failed runs.
func (m *MetricsService) ObserveAggregation(report *models.AggregateReport, duration time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.aggregationCount, 1)
	atomic.AddUint64(&m.aggregationTotalNs, uint64(duration.Nanoseconds()))
	if report == nil {
		atomic.AddUint64(&m.aggregationFailures, 1)
		m.aggregationDuration.WithLabelValues("error").Observe(duration.Seconds())
		return
	}
	m.aggregationDuration.WithLabelValues("ok").Observe(duration.Seconds())
	if report.RowsDropped > 0 {
		m.rowsDropped.Add(float64(report.RowsDropped))
		atomic.AddUint64(&m.rowsDroppedCount, uint64(report.RowsDropped))
	}
	m.reportStudents.Set(float64(report.TotalStudents))
	m.reportAvgPct.Set(report.AvgAttendancePct)
}

// RecordAlert counts one alert outcome.
func (m *MetricsService) RecordAlert(status models.AlertStatus) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(string(status)).Inc()
	switch status {
	case models.AlertStatusSent:
		atomic.AddUint64(&m.alertsSent, 1)
	case models.AlertStatusSkipped:
		atomic.AddUint64(&m.alertsSkipped, 1)
	case models.AlertStatusFailed:
		atomic.AddUint64(&m.alertsFailed, 1)
	}
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// Snapshot returns aggregated metrics suitable for the readiness endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	aggregations := atomic.LoadUint64(&m.aggregationCount)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: averageMs(atomic.LoadUint64(&m.requestDurationTotal), requests),
		AggregationsTotal:        aggregations,
		AggregationFailures:      atomic.LoadUint64(&m.aggregationFailures),
		AverageAggregationMs:     averageMs(atomic.LoadUint64(&m.aggregationTotalNs), aggregations),
		RowsDroppedTotal:         atomic.LoadUint64(&m.rowsDroppedCount),
		AlertsSent:               atomic.LoadUint64(&m.alertsSent),
		AlertsSkipped:            atomic.LoadUint64(&m.alertsSkipped),
		AlertsFailed:             atomic.LoadUint64(&m.alertsFailed),
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: averageMs(atomic.LoadUint64(&m.dbQueryDurationTotal), dbCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

func averageMs(totalNs, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(totalNs) / float64(count) / float64(time.Millisecond)
}
