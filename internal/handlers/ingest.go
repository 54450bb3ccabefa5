package handlers

import (
	"encoding/json"
	"net/http"
)

// EnqueueRequest selects items for analysis. A null or absent ids
// field enqueues every unprocessed item.
type EnqueueRequest struct {
	IDs []string `json:"ids"`
}

// CancelRequest withdraws items from the current batch.
type CancelRequest struct {
	IDs []string `json:"ids"`
}

// TriggerSync reconciles the index against the asset source.
func (h *Handlers) TriggerSync(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pipe.Sync(r.Context())
	if err != nil {
		writeJSONError(w, "Sync failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, stats)
}

// Enqueue admits items into the analysis batch.
func (h *Handlers) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	enqueued := h.pipe.Enqueue(req.IDs)
	if enqueued == nil {
		enqueued = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"enqueued": enqueued,
		"count":    len(enqueued),
	})
}

// Cancel withdraws items from analysis. Queued items leave the batch;
// in-flight items finish but their results are discarded.
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		writeJSONError(w, "ids is required", http.StatusBadRequest)
		return
	}

	removed := h.pipe.Cancel(req.IDs)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]int{"removed": removed})
}

// Pause suspends work delivery to the analysis workers.
func (h *Handlers) Pause(w http.ResponseWriter, _ *http.Request) {
	h.pipe.Pause()
	writeJSONStatus(w, "paused")
}

// Resume restarts work delivery after a pause.
func (h *Handlers) Resume(w http.ResponseWriter, _ *http.Request) {
	h.pipe.Resume()
	writeJSONStatus(w, "resumed")
}

// Progress reports batch completion as a fraction in [0, 1].
func (h *Handlers) Progress(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]float64{"progress": h.pipe.Progress()})
}

// GetStats reports pipeline status: item counts, queue depth,
// progress and index version.
func (h *Handlers) GetStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.pipe.Stats())
}
