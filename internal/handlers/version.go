package handlers

import (
	"net/http"

	"media-library/internal/startup"
)

// GetVersion returns version information about the application
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, startup.GetBuildInfo())
}
