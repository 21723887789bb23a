package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"media-shrinker/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"

	dependencyTimeout = 2 * time.Second
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status       string            `json:"status"`
	Ready        bool              `json:"ready"`
	Version      string            `json:"version"`
	Uptime       string            `json:"uptime"`
	Dependencies map[string]string `json:"dependencies,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// checkDependencies pings every registered dependency concurrently and
// returns "ok" or the error text per name.
func (h *Handlers) checkDependencies(ctx context.Context) (map[string]string, bool) {
	if len(h.deps) == 0 {
		return nil, true
	}

	ctx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(h.deps))
	for _, d := range h.deps {
		go func() {
			results <- result{name: d.name, err: d.pinger.Ping(ctx)}
		}()
	}

	out := make(map[string]string, len(h.deps))
	ok := true
	for range h.deps {
		res := <-results
		if res.err != nil {
			out[res.name] = res.err.Error()
			ok = false
			continue
		}
		out[res.name] = "ok"
	}
	return out, ok
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	deps, ok := h.checkDependencies(r.Context())

	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        ok,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Dependencies: deps,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	statusCode := http.StatusOK
	if !ok {
		response.Status = statusDegraded
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONStatusCode(w, statusCode, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when every dependency answers
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.checkDependencies(r.Context()); !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{
			"status": "not_ready",
		})
		return
	}
	writeJSONStatus(w, "ready")
}
