package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	kinds := []string{"single", "multi", "dual"}

	for _, kind := range kinds {
		RunsTotal.WithLabelValues(kind, "success")
		RunsTotal.WithLabelValues(kind, "error")
		RunDuration.WithLabelValues(kind)
		FramesTotal.WithLabelValues(kind, "true")
		FramesTotal.WithLabelValues(kind, "false")
		SceneFrames.WithLabelValues(kind)
		for _, outcome := range []string{"accepted", "rejected", "nokernel"} {
			ScenesTotal.WithLabelValues(kind, outcome)
		}
		StoredRuns.WithLabelValues(kind)
	}

	// --- Filesystem operation metrics (per volume × operation) ---
	volumes := []string{"output", "cache", "database", "unknown"}
	fsOps := []string{"read", "write", "stat", "rename"}

	for _, vol := range volumes {
		for _, op := range fsOps {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
		}
	}

	retryOps := []string{"stat", "open", "write"}

	for _, op := range retryOps {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	// --- DB query operations ---
	for _, op := range []string{"initialize_schema", "insert_run", "insert_catalogue", "list_runs",
		"get_run", "get_catalogue", "delete_run", "stats"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
