package handlers

import (
	"net/http"
)

// ListCollections returns the materialized smart collections.
func (h *Handlers) ListCollections(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.pipe.Collections())
}

// RefreshCollections recomputes collection membership on demand and
// returns the fresh result.
func (h *Handlers) RefreshCollections(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.pipe.RefreshCollections())
}
