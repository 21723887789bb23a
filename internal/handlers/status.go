package handlers

import (
	"net/http"

	"media-shrinker/internal/logging"
)

// GetStatus reports the conversion status for the upload named by ?key=.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSONError(w, "key is required", http.StatusBadRequest)
		return
	}

	view, err := h.status.Resolve(r.Context(), key)
	if err != nil {
		logging.Error("Status lookup for %s failed: %v", key, err)
		writeJSONError(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSONStatusCode(w, http.StatusOK, view)
}
