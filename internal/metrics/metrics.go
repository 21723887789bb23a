package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_shrinker_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_shrinker_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_shrinker_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	HTTPRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_shrinker_http_rate_limited_total",
			Help: "Total number of API requests rejected by the rate limiter",
		},
	)
)

// Conversion job metrics
var (
	ConversionJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_shrinker_conversion_jobs_total",
			Help: "Total number of conversion jobs by media kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: completed, passthrough, failure, duplicate
	)

	ConversionJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_shrinker_conversion_job_duration_seconds",
			Help:    "End to end conversion job duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"kind"},
	)

	ConversionJobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_shrinker_conversion_jobs_in_progress",
			Help: "Number of conversion jobs currently running",
		},
	)

	ConversionAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_shrinker_conversion_attempts",
			Help:    "Transcoder invocations needed per job",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		},
		[]string{"kind"},
	)

	ConversionOverTargetTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_shrinker_conversion_over_target_total",
			Help: "Completed conversions whose output still exceeds the size budget",
		},
		[]string{"kind"},
	)

	ConversionOutputBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_shrinker_conversion_output_bytes",
			Help:    "Size of converted outputs in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 10),
		},
		[]string{"kind"},
	)
)

// Transcoder metrics
var (
	TranscoderInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_shrinker_transcoder_invocations_total",
			Help: "Total number of transcoder invocations by encoder, operation and status",
		},
		[]string{"encoder", "operation", "status"},
	)

	TranscoderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_shrinker_transcoder_duration_seconds",
			Help:    "Transcoder invocation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"encoder", "operation"},
	)

	TranscoderProcessesRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_shrinker_transcoder_processes_running",
			Help: "Number of ffmpeg/ffprobe processes currently running",
		},
	)
)

// Storage metrics
var (
	StatusStoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_shrinker_status_store_operations_total",
			Help: "Total number of job status store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	StatusStoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_shrinker_status_store_operation_duration_seconds",
			Help:    "Job status store operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"backend", "operation"},
	)

	BlobOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_shrinker_blob_operations_total",
			Help: "Total number of object storage operations",
		},
		[]string{"operation", "status"},
	)

	BlobOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_shrinker_blob_operation_duration_seconds",
			Help:    "Object storage operation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)
)

// Queue metrics
var (
	QueueTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_shrinker_queue_tasks",
			Help: "Number of conversion tasks in the queue by state",
		},
		[]string{"state"},
	)

	TasksEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_shrinker_tasks_enqueued_total",
			Help: "Total number of conversion tasks enqueued by trigger and status",
		},
		[]string{"trigger", "status"}, // status: success, duplicate, error
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_shrinker_memory_usage_ratio",
			Help: "Go heap in use as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_shrinker_memory_paused",
			Help: "1 while new conversions are held back by memory pressure",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_shrinker_memory_pauses_total",
			Help: "Total number of times conversions were paused for memory",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_shrinker_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo records the running build on the app_info gauge.
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}

// StatusLabel maps an error to the status label used by the counters above.
func StatusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
