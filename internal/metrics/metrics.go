// Package metrics exposes process-wide Prometheus counters and histograms
// for the ingest pipeline, rollup application, and rejects, registered via
// promauto against the default registry and served at GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestRequestsTotal counts every accepted ingest HTTP call, labeled by
	// event type and whether it was deduped.
	IngestRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_requests_total",
			Help: "Total number of ingest requests processed, by event type and dedupe outcome",
		},
		[]string{"event_type", "deduped"},
	)

	// IngestRejectsTotal counts requests rejected by C1/C2, labeled by the
	// validate.Rejected/normalize.TimestampRejected code.
	IngestRejectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rejects_total",
			Help: "Total number of ingest requests rejected before persistence, by reason code",
		},
		[]string{"code"},
	)

	// IngestDuration observes wall-clock time spent in Pipeline.Ingest,
	// including the write transaction.
	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_duration_seconds",
			Help:    "Duration of one Pipeline.Ingest call",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RollupApplyDuration observes wall-clock time spent applying rollup
	// deltas for one event (C5 only, excluding C1-C4).
	RollupApplyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollup_apply_duration_seconds",
			Help:    "Duration of ApplyRollups/ApplyGoalMetrics for one event",
			Buckets: prometheus.DefBuckets,
		},
	)

	// WebhooksProcessedTotal counts processed payment webhooks, labeled by
	// provider and dedupe outcome.
	WebhooksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_processed_total",
			Help: "Total number of payment webhooks processed, by provider and dedupe outcome",
		},
		[]string{"provider", "deduped"},
	)

	// RateLimitRejectsTotal counts 429 responses, labeled by scope (ingest,
	// goals).
	RateLimitRejectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejects_total",
			Help: "Total number of requests rejected by the in-process rate limiter",
		},
		[]string{"scope"},
	)

	// RebuildEventsProcessed observes how many raw events one Rebuilder.Run
	// call replayed.
	RebuildEventsProcessed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rebuild_events_processed",
			Help:    "Number of raw events replayed by one rebuild run",
			Buckets: []float64{1, 10, 100, 1_000, 10_000, 100_000, 1_000_000},
		},
	)

	// RetentionRowsDeleted counts rows deleted by RetentionGC, labeled by
	// table.
	RetentionRowsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_rows_deleted_total",
			Help: "Total number of rows deleted by RetentionGC, by table",
		},
		[]string{"table"},
	)
)
