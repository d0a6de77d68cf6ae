// Package metrics provides Prometheus metrics for the clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks reconciliation runs by outcome
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs by outcome",
		},
		[]string{"tenant_id", "status"},
	)

	// RunDuration tracks full run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "reconcile",
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"tenant_id"},
	)

	// MatchesTotal tracks claimed matches by pass and confidence
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "matches_total",
			Help:      "Total number of claimed matches by pass and confidence",
		},
		[]string{"tenant_id", "pass", "confidence"},
	)

	// UnmatchedDeals tracks deals left unclaimed per run
	UnmatchedDeals = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "unmatched_deals",
			Help:      "Deals left unclaimed by the most recent run",
		},
		[]string{"tenant_id", "source"},
	)

	// MergedCompanies tracks cards produced per run
	MergedCompanies = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "merging",
			Name:      "merged_companies",
			Help:      "Company cards produced by the most recent run",
		},
		[]string{"tenant_id"},
	)

	// ExceptionsTotal tracks exceptions raised by kind
	ExceptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "reconcile",
			Name:      "exceptions_total",
			Help:      "Total number of exceptions raised by kind",
		},
		[]string{"tenant_id", "kind"},
	)

	// IngestMessagesTotal tracks consumed ingest messages by topic and outcome
	IngestMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Total number of ingest messages consumed by topic and outcome",
		},
		[]string{"topic", "status"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// GraphProjectionDuration tracks graph projection duration per run
	GraphProjectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "graph",
			Name:      "projection_duration_seconds",
			Help:      "Duration of graph projections in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tenant_id"},
	)
)

// RecordRun records a finished run's outcome and duration
func RecordRun(tenantID, status string, durationSeconds float64) {
	RunsTotal.WithLabelValues(tenantID, status).Inc()
	RunDuration.WithLabelValues(tenantID).Observe(durationSeconds)
}

// RecordMatch records one claimed match
func RecordMatch(tenantID, pass, confidence string) {
	MatchesTotal.WithLabelValues(tenantID, pass, confidence).Inc()
}

// RecordException records one raised exception
func RecordException(tenantID, kind string) {
	ExceptionsTotal.WithLabelValues(tenantID, kind).Inc()
}

// RecordIngestMessage records one consumed ingest message
func RecordIngestMessage(topic, status string) {
	IngestMessagesTotal.WithLabelValues(topic, status).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
