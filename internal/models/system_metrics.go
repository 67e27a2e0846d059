package models

import "time"

// SystemMetrics summarises runtime counters for the readiness endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"avg_request_duration_ms"`
	AggregationsTotal        uint64    `json:"aggregations_total"`
	AggregationFailures      uint64    `json:"aggregation_failures"`
	AverageAggregationMs     float64   `json:"avg_aggregation_ms"`
	RowsDroppedTotal         uint64    `json:"rows_dropped_total"`
	AlertsSent               uint64    `json:"alerts_sent"`
	AlertsSkipped            uint64    `json:"alerts_skipped"`
	AlertsFailed             uint64    `json:"alerts_failed"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"avg_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
