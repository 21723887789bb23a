// Package metrics provides Prometheus instrumentation for the media shrinker.
//
// All metrics are prefixed with "media_shrinker_" to avoid naming collisions
// with other applications.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of total requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//   - HTTPRateLimitedTotal: Counter of requests rejected by the API rate limiter
//
// ## Conversion Metrics
//
// Recorded by the conversion job for every delivered task:
//   - ConversionJobsTotal: Counter by media kind and outcome
//   - ConversionJobDuration: Histogram of job wall time by kind
//   - ConversionAttempts: Histogram of transcoder invocations per job
//   - ConversionOverTargetTotal: Counter of completed outputs above the budget
//   - ConversionOutputBytes: Histogram of output sizes
//
// ## Transcoder Metrics
//
//   - TranscoderInvocationsTotal: Counter by encoder, operation and status
//   - TranscoderDuration: Histogram of invocation duration
//   - TranscoderProcessesRunning: Gauge of live ffmpeg/ffprobe processes
//
// ## Storage and Queue Metrics
//
//   - StatusStoreOperationsTotal / StatusStoreOperationDuration: job status store access
//   - BlobOperationsTotal / BlobOperationDuration: object storage access
//   - QueueTasks: Gauge of asynq queue sizes by state, refreshed by Collector
//   - TasksEnqueuedTotal: Counter of enqueue attempts by trigger
//
// # Usage
//
// Metrics are registered with the default registry through promauto. Call
// InitializeMetrics once at startup so that all label combinations exist
// before the first scrape, and expose them with promhttp.Handler():
//
//	metrics.InitializeMetrics()
//	collector := metrics.NewCollector(queueStats, time.Minute)
//	collector.Start()
//	defer collector.Stop()
package metrics
