package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Change-feed consume latency per table (milliseconds).
	FeedConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_consume_latency_ms",
			Help:    "Change-feed event consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"table"},
	)

	// HTTP request latency (seconds).
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// Database query latency (seconds).
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)

	// Rejected lifecycle transitions by guard.
	TransitionRejectedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_transition_rejected_count",
			Help: "Total number of lifecycle transitions rejected by a guard",
		},
		[]string{"guard"},
	)

	// Full refetches triggered by dropped feed connections.
	FeedResyncCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_resync_count",
			Help: "Total number of resyncs signalled to feed subscribers",
		},
		[]string{"table"},
	)

	// Duplicate rows repaired by the reconciliation worker.
	AnomalyRepairedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomaly_repaired_count",
			Help: "Total number of duplicate-row anomalies repaired",
		},
		[]string{"table"},
	)

	// Outbox events published to the feed exchange.
	ChangeEventPublishedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "change_event_published_count",
			Help: "Total number of change events published",
		},
		[]string{"table", "op"},
	)

	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries over the slow-query threshold",
		},
	)
)

func RecordFeedConsumeLatency(table string, duration time.Duration) {
	FeedConsumeLatency.WithLabelValues(table).Observe(float64(duration.Milliseconds()))
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

func IncrementTransitionRejected(guard string) {
	TransitionRejectedCount.WithLabelValues(guard).Inc()
}

func IncrementFeedResync(table string) {
	FeedResyncCount.WithLabelValues(table).Inc()
}

func IncrementAnomalyRepaired(table string) {
	AnomalyRepairedCount.WithLabelValues(table).Inc()
}

func IncrementChangeEventPublished(table, op string) {
	ChangeEventPublishedCount.WithLabelValues(table, op).Inc()
}

func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}
