package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	kinds := []string{"image", "video", "unknown"}

	// --- Conversion jobs ---
	for _, kind := range kinds {
		for _, outcome := range []string{"completed", "passthrough", "failure", "duplicate"} {
			ConversionJobsTotal.WithLabelValues(kind, outcome)
		}
		ConversionJobDuration.WithLabelValues(kind)
		ConversionAttempts.WithLabelValues(kind)
		ConversionOverTargetTotal.WithLabelValues(kind)
		ConversionOutputBytes.WithLabelValues(kind)
	}

	// --- Transcoder ---
	for _, enc := range []string{"ffmpeg", "native", "vips"} {
		TranscoderDuration.WithLabelValues(enc, "image")
		TranscoderInvocationsTotal.WithLabelValues(enc, "image", "success")
		TranscoderInvocationsTotal.WithLabelValues(enc, "image", "error")
	}
	for _, op := range []string{"video", "probe"} {
		TranscoderDuration.WithLabelValues("ffmpeg", op)
		TranscoderInvocationsTotal.WithLabelValues("ffmpeg", op, "success")
		TranscoderInvocationsTotal.WithLabelValues("ffmpeg", op, "error")
	}

	// --- Status store ---
	for _, backend := range []string{"redis", "sqlite"} {
		for _, op := range []string{"get", "put", "purge"} {
			StatusStoreOperationsTotal.WithLabelValues(backend, op, "success")
			StatusStoreOperationsTotal.WithLabelValues(backend, op, "error")
			if op == "put" {
				StatusStoreOperationsTotal.WithLabelValues(backend, op, "terminal")
			}
			StatusStoreOperationDuration.WithLabelValues(backend, op)
		}
	}

	// --- Object storage ---
	for _, op := range []string{"create_multipart", "presign_part", "complete_multipart",
		"head", "download", "upload", "presign_get"} {
		BlobOperationsTotal.WithLabelValues(op, "success")
		BlobOperationsTotal.WithLabelValues(op, "error")
		if op == "head" || op == "download" {
			BlobOperationsTotal.WithLabelValues(op, "not_found")
		}
		BlobOperationDuration.WithLabelValues(op)
	}

	// --- Queue ---
	for _, state := range []string{"pending", "active", "scheduled", "retry", "archived", "completed"} {
		QueueTasks.WithLabelValues(state)
	}
	for _, trigger := range []string{"complete", "s3_event"} {
		for _, status := range []string{"success", "duplicate", "error"} {
			TasksEnqueuedTotal.WithLabelValues(trigger, status)
		}
	}
}
