package handlers

import (
	"net/http"
	"runtime"
	"time"

	"media-library/internal/library"
	"media-library/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status    string  `json:"status"`
	Ready     bool    `json:"ready"`
	Version   string  `json:"version"`
	Uptime    string  `json:"uptime"`
	Analyzing bool    `json:"analyzing"`
	Progress  float64 `json:"progress"`

	// Item counts
	TotalItems     int `json:"totalItems"`
	ProcessedItems int `json:"processedItems"`
	FailedItems    int `json:"failedItems"`
	QueueDepth     int `json:"queueDepth"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	stats := h.pipe.Stats()

	total := 0
	for _, n := range stats.Items {
		total += n
	}

	response := HealthResponse{
		Ready:          true,
		Version:        startup.Version,
		Uptime:         time.Since(h.startedAt).Round(time.Second).String(),
		Analyzing:      stats.Progress < 1.0,
		Progress:       stats.Progress,
		TotalItems:     total,
		ProcessedItems: stats.Items[string(library.StateProcessed)],
		FailedItems:    stats.Items[string(library.StateFailed)],
		QueueDepth:     stats.QueueDepth,
		GoVersion:      runtime.Version(),
		NumCPU:         runtime.NumCPU(),
		NumGoroutine:   runtime.NumGoroutine(),
	}
	response.Status = statusHealthy

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	writeJSON(w, response)
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

// ReadinessCheck returns 200 once the pipeline is serving.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	writeJSON(w, map[string]string{
		"status": "ready",
	})
}
