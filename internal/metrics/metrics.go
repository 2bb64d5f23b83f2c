// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engine Metrics
	EngineOverlapSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homevault_engine_overlap_skips_total",
			Help: "Executions skipped because the same job or tag was already running",
		},
		[]string{"lock"}, // "job:<id>" or "tag:<id>"
	)

	EngineTargetAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homevault_engine_target_attempts_total",
			Help: "Plugin invocations per target attempt",
		},
		[]string{"outcome"}, // "success", "error"
	)

	EngineTargetDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "homevault_engine_target_duration_seconds",
			Help:    "Wall time per target including retries",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"status"},
	)

	EngineActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "homevault_engine_active_workers",
			Help: "Worker goroutines currently executing targets",
		},
	)

	// Run Lifecycle Metrics
	RunsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homevault_runs_finished_total",
			Help: "Runs finished, by operation and aggregate status",
		},
		[]string{"operation", "status"},
	)

	ArtifactBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "homevault_artifact_bytes",
			Help:    "Size of artifacts produced by successful backups",
			Buckets: prometheus.ExponentialBuckets(1<<20, 4, 10), // 1MiB .. 256GiB
		},
	)

	// Retention Metrics
	RetentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "homevault_retention_deleted_total",
			Help: "TargetRuns deleted by retention",
		},
	)

	RetentionDeleteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "homevault_retention_delete_errors_total",
			Help: "Artifact or sidecar deletions that failed during retention",
		},
	)

	RetentionSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "homevault_retention_sweep_duration_seconds",
			Help:    "Duration of full retention sweeps",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Scheduler Metrics
	SchedulerEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "homevault_scheduler_entries",
			Help: "Live cron triggers",
		},
	)

	SchedulerFires = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homevault_scheduler_fires_total",
			Help: "Cron fires dispatched, by trigger kind",
		},
		[]string{"kind"}, // "backup", "maintenance"
	)

	SchedulerInvalidCron = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "homevault_scheduler_invalid_cron_total",
			Help: "Stored cron expressions skipped at load because they do not parse",
		},
	)

	// Notification Metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homevault_notifications_total",
			Help: "Failure notifications by sink and result",
		},
		[]string{"sink", "result"}, // result: "sent", "error", "rejected"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "homevault_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Event Bus Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homevault_events_published_total",
			Help: "Run events published to the bus",
		},
		[]string{"topic", "result"},
	)

	// Database Metrics
	DBTxDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "homevault_duckdb_tx_duration_seconds",
			Help:    "Duration of DuckDB write transactions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	DBTxConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "homevault_duckdb_tx_conflicts_total",
			Help: "Write transactions retried after a DuckDB conflict",
		},
	)

	// Ops API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homevault_api_requests_total",
			Help: "Total number of ops API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "homevault_api_request_duration_seconds",
			Help:    "Ops API request duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordOverlapSkip counts an execution dropped by the per-job lock
func RecordOverlapSkip(lockKey string) {
	EngineOverlapSkips.WithLabelValues(lockKey).Inc()
}

// RecordAttempt counts one plugin invocation
func RecordAttempt(err error) {
	if err != nil {
		EngineTargetAttempts.WithLabelValues("error").Inc()
		return
	}
	EngineTargetAttempts.WithLabelValues("success").Inc()
}

// RecordTarget records the total time spent on one target
func RecordTarget(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failed"
	}
	EngineTargetDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// TrackWorker tracks executing engine workers
func TrackWorker(inc bool) {
	if inc {
		EngineActiveWorkers.Inc()
	} else {
		EngineActiveWorkers.Dec()
	}
}

// RecordRunFinished counts a finished Run
func RecordRunFinished(operation, status string) {
	RunsFinished.WithLabelValues(operation, status).Inc()
}

// RecordArtifact observes the size of a produced artifact
func RecordArtifact(bytes int64) {
	if bytes > 0 {
		ArtifactBytes.Observe(float64(bytes))
	}
}

// RecordRetention records the outcome of one retention pass
func RecordRetention(deleted, deleteErrors int) {
	RetentionDeleted.Add(float64(deleted))
	RetentionDeleteErrors.Add(float64(deleteErrors))
}

// RecordSweep observes the duration of a full retention sweep
func RecordSweep(duration time.Duration) {
	RetentionSweepDuration.Observe(duration.Seconds())
}

// RecordSchedulerFire counts a cron fire
func RecordSchedulerFire(kind string) {
	SchedulerFires.WithLabelValues(kind).Inc()
}

// RecordNotification counts a notification attempt
func RecordNotification(sink, result string) {
	NotificationsSent.WithLabelValues(sink, result).Inc()
}

// RecordEventPublish counts a bus publish
func RecordEventPublish(topic string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EventsPublished.WithLabelValues(topic, result).Inc()
}

// RecordDBTx records a write transaction
func RecordDBTx(duration time.Duration, err error) {
	result := "commit"
	if err != nil {
		result = "error"
	}
	DBTxDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordAPIRequest records an ops API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
