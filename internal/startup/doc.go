// Package startup handles configuration loading, build information and the
// lifecycle logging printed while the service starts and stops.
//
// # Configuration
//
// [LoadConfig] reads settings in this order, later sources winning:
// built-in defaults, the YAML/JSON/TOML file named by CONFIG_FILE, a
// .env.local file in the working directory, and the process environment.
// Keys in a config file use the lower-case form of the variable name
// (bucket_name, target_bytes, ...).
//
//   - PORT: API server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable the metrics server (default: true)
//   - BUCKET_NAME: S3 bucket holding uploads and converted output (required)
//   - AWS_REGION, S3_ENDPOINT, S3_PATH_STYLE: S3 client settings
//   - REDIS_URL: Redis for the job queue and the redis status store
//   - STATUS_STORE: redis or sqlite (default: redis)
//   - DATABASE_DIR: Directory for the sqlite status store (default: /database)
//   - STATUS_TTL: How long status records are kept (default: 168h)
//   - TARGET_BYTES: Output size budget in bytes (default: 5242880)
//   - WORK_DIR: Scratch directory for conversions
//   - IMAGE_ENCODER: auto, native, vips or ffmpeg (default: auto)
//   - WORKER_CONCURRENCY: Conversion workers (default: half the CPUs, at most 8)
//   - JOB_TIMEOUT: Upper bound for one conversion (default: 30m)
//   - PRESIGN_TTL: Lifetime of presigned URLs (default: 1h)
//   - API_RATE_LIMIT, API_RATE_BURST: Per-client API rate limit (default: 20/s, burst 40)
//   - CORS_ORIGINS: Comma separated allowed origins (default: *)
//   - MEMORY_LIMIT, MEMORY_RATIO: Container memory limit in bytes and the
//     share given to the Go heap (default ratio: 0.5)
//   - LOG_LEVEL, LOG_HEALTH_CHECKS: Logging controls
//
// # Lifecycle Logging
//
//   - [LogTranscoderInit]: ffmpeg version and image encoder
//   - [LogStatusStoreInit]: status store backend
//   - [LogQueueInit]: worker count and ffmpeg threads
//   - [LogHTTPRoutes]: registered routes (debug level)
//   - [LogServerStarted]: listening endpoints and startup duration
//   - [LogShutdownInitiated], [LogShutdownStep], [LogShutdownComplete]
package startup
