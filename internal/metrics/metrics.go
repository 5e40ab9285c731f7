package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "descale_qc_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "descale_qc_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "descale_qc_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "descale_qc_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "descale_qc_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "descale_qc_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "descale_qc_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Classification metrics
var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "descale_qc_runs_total",
			Help: "Total number of classification runs",
		},
		[]string{"kind", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "descale_qc_run_duration_seconds",
			Help:    "Classification run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600, 7200},
		},
		[]string{"kind"},
	)

	RunsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "descale_qc_runs_in_progress",
			Help: "Number of classification runs currently in progress",
		},
	)

	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "descale_qc_frames_total",
			Help: "Total number of frames visited, by whether their error was measured",
		},
		[]string{"kind", "measured"},
	)

	ScenesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "descale_qc_scenes_total",
			Help: "Total number of scenes closed, by outcome",
		},
		[]string{"kind", "outcome"}, // "accepted", "rejected", "nokernel"
	)

	SceneFrames = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "descale_qc_scene_frames",
			Help:    "Length of closed scenes in frames",
			Buckets: []float64{1, 12, 24, 48, 96, 240, 480, 1000, 2500},
		},
		[]string{"kind"},
	)

	CandidateScenesAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "descale_qc_candidate_scenes_accepted_total",
			Help: "Scenes accepted into each candidate catalogue",
		},
		[]string{"candidate"},
	)

	CandidateTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "descale_qc_candidate_trips_total",
			Help: "Scenes in which a candidate breached its per-frame ceiling",
		},
		[]string{"candidate"},
	)
)

// Offset search metrics
var (
	OffsetPartsScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "descale_qc_offset_parts_scanned_total",
			Help: "Total number of desync parts searched",
		},
	)

	OffsetDesyncsFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "descale_qc_offset_desyncs_found_total",
			Help: "Total number of desync points reported",
		},
	)

	OffsetLastValue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "descale_qc_offset_last_value_frames",
			Help: "Offset found by the most recent part search",
		},
	)

	OffsetSearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "descale_qc_offset_search_duration_seconds",
			Help:    "Duration of offset and desync searches",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
	)
)

// Catalogue store metrics
var (
	StoredRuns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "descale_qc_stored_runs",
			Help: "Number of recorded runs by kind",
		},
		[]string{"kind"},
	)

	StoredCatalogues = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "descale_qc_stored_catalogues",
			Help: "Number of recorded catalogues",
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "descale_qc_memory_usage_ratio",
			Help: "Heap usage as a ratio of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "descale_qc_memory_paused",
			Help: "Whether frame decoding is paused for memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "descale_qc_memory_gc_pauses_total",
			Help: "Number of times decoding was paused and a GC forced",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "descale_qc_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "descale_qc_filesystem_operation_errors_total",
			Help: "Total number of failed filesystem operations",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "descale_qc_filesystem_retry_attempts_total",
			Help: "Total number of filesystem retry attempts",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "descale_qc_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after a retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "descale_qc_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "descale_qc_filesystem_retry_duration_seconds",
			Help:    "Total time spent in retried filesystem operations",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "descale_qc_filesystem_stale_errors_total",
			Help: "Total number of transient filesystem errors encountered",
		},
		[]string{"operation", "volume"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "descale_qc_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
