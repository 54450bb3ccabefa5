package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"media-library/internal/library"
)

// GetItem returns one media item by id.
func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	item, ok := h.pipe.Item(id)
	if !ok {
		writeJSONError(w, "Item not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, item)
}

// ToggleFavorite flips an item's favorite flag. The change is visible
// to collections immediately, independent of analysis state.
func (h *Handlers) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	favorite, err := h.pipe.ToggleFavorite(id)
	if err != nil {
		if errors.Is(err, library.ErrUnknownItem) {
			writeJSONError(w, "Item not found", http.StatusNotFound)
			return
		}
		writeJSONError(w, "Failed to toggle favorite", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]bool{"favorite": favorite})
}

// ListFaceClusters returns the known face clusters.
func (h *Handlers) ListFaceClusters(w http.ResponseWriter, _ *http.Request) {
	clusters := h.pipe.FaceClusters()
	if clusters == nil {
		clusters = []library.FaceCluster{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, clusters)
}

// LabelFaceClusterRequest names a face cluster.
type LabelFaceClusterRequest struct {
	Label string `json:"label"`
}

// LabelFaceCluster assigns a display name to a face cluster.
func (h *Handlers) LabelFaceCluster(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req LabelFaceClusterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Label == "" {
		writeJSONError(w, "label is required", http.StatusBadRequest)
		return
	}

	if err := h.pipe.LabelFaceCluster(id, req.Label); err != nil {
		writeJSONError(w, "Cluster not found", http.StatusNotFound)
		return
	}
	writeJSONStatus(w, "ok")
}

// MergeFaceClustersRequest folds one cluster into another.
type MergeFaceClustersRequest struct {
	From string `json:"from"`
}

// MergeFaceClusters merges the "from" cluster into the cluster named
// in the path; members and signatures move, the target's label wins.
func (h *Handlers) MergeFaceClusters(w http.ResponseWriter, r *http.Request) {
	dst := mux.Vars(r)["id"]

	var req MergeFaceClustersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.From == "" {
		writeJSONError(w, "from is required", http.StatusBadRequest)
		return
	}

	if err := h.pipe.MergeFaceClusters(dst, req.From); err != nil {
		writeJSONError(w, "Cluster not found", http.StatusNotFound)
		return
	}
	writeJSONStatus(w, "ok")
}
