// Package middleware provides HTTP middleware for the media shrinker API:
// W3C access logging with request IDs, Prometheus request metrics,
// per-client rate limiting and CORS.
package middleware
