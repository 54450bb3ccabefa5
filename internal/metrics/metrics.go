package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Scheduler metrics
var (
	SchedulerWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_scheduler_workers",
			Help: "Number of analysis workers in the pool",
		},
	)

	SchedulerItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_scheduler_items_total",
			Help: "Total number of items reaching a terminal analysis outcome",
		},
		[]string{"outcome"}, // "processed", "failed", "cancelled", "vanished"
	)

	SchedulerCapabilityRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_scheduler_capability_retries_total",
			Help: "Total number of capability retry attempts",
		},
		[]string{"capability"},
	)

	SchedulerCapabilityFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_scheduler_capability_failures_total",
			Help: "Total number of capability contributions abandoned",
		},
		[]string{"capability", "kind"}, // kind: "exhausted", "permanent"
	)

	SchedulerInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_scheduler_in_flight",
			Help: "Number of items currently being analyzed",
		},
	)

	SchedulerBatchProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_scheduler_batch_progress",
			Help: "Fraction of the current ingestion batch completed (0..1)",
		},
	)

	SchedulerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_scheduler_queue_depth",
			Help: "Number of items waiting in the analysis queue",
		},
	)

	SchedulerAnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_scheduler_analysis_duration_seconds",
			Help:    "Wall time to analyze one item",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"outcome"},
	)
)

// Index metrics
var (
	IndexCommitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_index_commits_total",
			Help: "Total number of atomic index commits",
		},
	)

	IndexVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_index_version",
			Help: "Current index version stamp",
		},
	)

	IndexItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_library_index_items",
			Help: "Number of items in the index by processing state",
		},
		[]string{"state"},
	)

	IndexRebuildsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_index_rebuilds_total",
			Help: "Total number of full index rebuilds after corruption",
		},
	)
)

// Query metrics
var (
	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_library_query_duration_seconds",
			Help:    "Search evaluation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	QueryResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_library_query_results",
			Help:    "Number of items returned per search",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
	)
)

// Ingestion metrics
var (
	SyncRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_sync_runs_total",
			Help: "Total number of asset source sync runs",
		},
	)

	SyncLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_sync_last_run_timestamp",
			Help: "Timestamp of the last completed sync",
		},
	)

	SyncItemsDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_sync_items_discovered_total",
			Help: "Total number of new or changed items discovered by sync",
		},
	)
)

// Collection metrics
var (
	CollectionRecomputesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_collection_recomputes_total",
			Help: "Total number of smart collection recomputations",
		},
	)

	CollectionMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_library_collection_members",
			Help: "Number of members per smart collection",
		},
		[]string{"collection"},
	)
)

// Filesystem retry metrics
var (
	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_fs_stale_errors_total",
			Help: "Total number of NFS stale file handle errors encountered",
		},
		[]string{"operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_fs_retry_attempts_total",
			Help: "Total number of filesystem operation retries",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_fs_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation"},
	)
)

// Memory backpressure metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_memory_paused",
			Help: "Whether analysis is paused due to memory pressure (0 or 1)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_memory_gc_pauses_total",
			Help: "Total number of forced GC cycles triggered by memory pressure",
		},
	)
)

// Snapshot store metrics
var (
	SnapshotOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_snapshot_ops_total",
			Help: "Total number of snapshot store operations",
		},
		[]string{"operation", "status"},
	)

	SnapshotOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_snapshot_op_duration_seconds",
			Help:    "Snapshot store operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation"},
	)
)
