package handlers

import (
	"net/http"

	"media-shrinker/internal/startup"
)

type versionResponse struct {
	Service string `json:"service"`
	startup.BuildInfo
}

// GetVersion reports the build of the running binary.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatusCode(w, http.StatusOK, versionResponse{
		Service:   startup.ServiceName,
		BuildInfo: startup.GetBuildInfo(),
	})
}
