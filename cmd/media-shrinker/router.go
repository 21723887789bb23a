package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"media-shrinker/internal/handlers"
	"media-shrinker/internal/middleware"
	"media-shrinker/internal/startup"
)

func setupRouter(h *handlers.Handlers, limiter *middleware.IPRateLimiter) *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(handlers.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(handlers.MethodNotAllowed)
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Probes and build info
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(limiter.Middleware)

	// Multipart upload
	api.HandleFunc("/multipart/initiate", h.InitiateUpload).Methods(http.MethodPost).Name("initiate")
	api.HandleFunc("/multipart/url", h.GetPartURL).Methods(http.MethodGet).Name("part-url")
	api.HandleFunc("/multipart/complete", h.CompleteUpload).Methods(http.MethodPost).Name("complete")

	// Storage notifications
	api.HandleFunc("/events/s3", h.HandleS3Event).Methods(http.MethodPost).Name("s3-event")

	// Conversion status
	api.HandleFunc("/status", h.GetStatus).Methods(http.MethodGet).Name("status")

	return r
}

// withMiddleware wraps the router with the request-scoped middleware that
// must also see unmatched routes and CORS preflights.
func withMiddleware(router http.Handler, config *startup.Config) http.Handler {
	cors := middleware.DefaultCORSConfig()
	if len(config.CORSOrigins) > 0 {
		cors.AllowedOrigins = config.CORSOrigins
	}

	logCfg := middleware.DefaultLoggingConfig()
	logCfg.LogHealthChecks = config.LogHealthChecks

	var handler http.Handler = router
	handler = middleware.CORS(cors)(handler)
	handler = middleware.Logger(logCfg)(handler)
	handler = middleware.RequestID(handler)
	return handler
}
