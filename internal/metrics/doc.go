// Package metrics provides Prometheus instrumentation for the descale-qc
// tools and the catalogue server.
//
// All metrics are prefixed with "descale_qc_" and registered through
// promauto on the default registry.
//
// # Metric Categories
//
// ## HTTP Metrics
//
// Catalogue server request rates and latency:
//   - HTTPRequestsTotal: Counter of total requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//
// ## Database Metrics
//
// Run store query performance and size:
//   - DBQueryTotal, DBQueryDuration: per operation
//   - DBConnectionsOpen
//   - DBSizeBytes: main, WAL and SHM file sizes
//
// ## Classification Metrics
//
// Fed by NewSceneObserver, which the command line attaches to every run:
//   - RunsTotal, RunDuration, RunsInProgress: by run kind
//   - FramesTotal: frames visited, split by whether their error was measured
//   - ScenesTotal: closed scenes by outcome (accepted, rejected, nokernel)
//   - SceneFrames: scene length distribution
//   - CandidateScenesAccepted, CandidateTrips: per candidate label
//
// ## Offset Metrics
//
// Fed by NewOffsetObserver during desync scans:
//   - OffsetPartsScanned, OffsetDesyncsFound, OffsetLastValue
//
// ## Filesystem Metrics
//
// Fed by NewFilesystemObserver for catalogue writes and cache reads, labelled
// by volume ("output", "cache", "database"):
//   - FilesystemOperationDuration, FilesystemOperationErrors
//   - FilesystemRetry*: retries of transient errors
//
// # Usage
//
//	metrics.InitializeMetrics()
//	filesystem.SetObserver(metrics.NewFilesystemObserver())
//	http.Handle("/metrics", promhttp.Handler())
//
// The CLI pushes nothing; when METRICS_ENABLED is set it serves /metrics on
// METRICS_PORT for the lifetime of the run, which is enough for a
// Prometheus scrape of long analyses.
package metrics
