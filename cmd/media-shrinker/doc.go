// Package main is the entry point for the media-shrinker service.
//
// The service re-encodes uploaded images and videos so they fit a size
// budget (TARGET_BYTES, 5 MiB by default). Clients upload straight to S3
// through presigned multipart URLs, and a conversion job starts either when
// the upload is completed through the API or when S3 reports the new object.
// Converted output is written under processed/ and its state can be polled
// until a download URL is available.
//
// # Application Lifecycle
//
//  1. Configuration loading from defaults, CONFIG_FILE, .env.local and the environment
//  2. Transcoder setup: ffmpeg is required, libvips is used when available
//  3. Status store: redis (default) or a local sqlite file
//  4. S3 client, converter and the asynq job queue
//  5. HTTP servers: the API on PORT and Prometheus metrics on METRICS_PORT
//  6. Graceful shutdown on SIGINT/SIGTERM, draining in-flight conversions
//
// # HTTP API
//
//	POST /api/multipart/initiate   start a multipart upload
//	GET  /api/multipart/url        presign one part upload
//	POST /api/multipart/complete   finish the upload and queue a conversion
//	POST /api/events/s3            S3 ObjectCreated notification
//	GET  /api/status?key=...       poll conversion state
//	GET  /livez /readyz /healthz   probes
//	GET  /version                  build information
//
// See the startup package for the full list of configuration variables.
package main
