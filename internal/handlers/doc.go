// Package handlers provides the HTTP API of the media shrinker.
//
// It includes handlers for:
//   - Multipart uploads: initiate, presigned part URLs and completion
//   - S3 event notifications that queue conversions
//   - Conversion status polling
//   - Health, readiness and version information
//
// Collaborators are injected through small interfaces so the handlers can
// be exercised with httptest and in-memory fakes.
package handlers
