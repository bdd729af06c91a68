package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts reconciliation runs by final status
	// status: success, failed, cancelled, locked
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imeisync_runs_total",
		Help: "Total number of reconciliation runs by status",
	}, []string{"status"})

	// RecordsProcessed tracks what each run did per identifier
	// outcome: inserted, updated, reactivated, unchanged, deactivated
	RecordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imeisync_records_total",
		Help: "Total number of identifiers reconciled by outcome",
	}, []string{"outcome"})

	// RowErrors counts failed single-row writes. They never abort a run
	RowErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imeisync_row_errors_total",
		Help: "Total number of failed row writes by operation",
	}, []string{"op"})

	// DuplicatesDropped counts non-first occurrences removed before sync
	DuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imeisync_duplicates_total",
		Help: "Total number of duplicate identifiers dropped from extraction batches",
	})

	// SyncDuration measures a full run, from ensure-table to the last deactivation
	// Large tables on remote stores can take minutes
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "imeisync_run_duration_seconds",
		Help:    "Duration of a reconciliation run in seconds",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 180, 600},
	})

	// BatchSize tracks the number of unique identifiers per run
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "imeisync_batch_size",
		Help:    "Number of unique identifiers per reconciliation batch",
		Buckets: []float64{10, 100, 1000, 5000, 20000, 100000},
	})

	// LastSuccess is the unix time of the last run that finished with success
	LastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "imeisync_last_success_timestamp_seconds",
		Help: "Unix timestamp of the last successful reconciliation run",
	})

	// FilesProcessed counts workbooks handled by the pipeline
	// status: processed, failed, skipped
	FilesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imeisync_files_total",
		Help: "Total number of spreadsheet files handled by status",
	}, []string{"status"})

	// ProfileRuns counts scheduled and manual profile executions
	ProfileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imeisync_profile_runs_total",
		Help: "Total number of profile executions by trigger and status",
	}, []string{"trigger", "status"})

	// RabbitMQReconnections counts how many times a daemon had to restore the broker link
	RabbitMQReconnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imeisync_rabbitmq_reconnections_total",
		Help: "Total number of RabbitMQ reconnection attempts",
	})

	// HealthStatus provides a binary 0/1 signal for the daemon's health
	// 1 = Healthy, 0 = Unhealthy (store or broker unreachable)
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "imeisync_healthy",
		Help: "Current health status of the daemon (1 for healthy, 0 for unhealthy)",
	})
)
