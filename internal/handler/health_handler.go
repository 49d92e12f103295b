package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether the history store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LiveCounter reports how many runs are in progress.
type LiveCounter interface {
	LiveCount() int
}

// HealthHandler handles service health and readiness checks
type HealthHandler struct {
	db        Pinger
	runs      LiveCounter
	startTime time.Time
	version   string
}

// NewHealthHandler creates a health handler. db may be nil when history is
// kept in memory.
func NewHealthHandler(db Pinger, runs LiveCounter, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		runs:      runs,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Timestamp     string `json:"timestamp"`
	History       string `json:"history"`
	LiveRuns      int    `json:"live_runs"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Ready   bool   `json:"ready"`
	History string `json:"history"`
}

func (h *HealthHandler) historyStatus(ctx context.Context) (string, bool) {
	if h.db == nil {
		return "memory", true
	}
	if err := h.db.Ping(ctx); err != nil {
		return "disconnected", false
	}
	return "connected", true
}

// Health returns the service health status
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	history, _ := h.historyStatus(r.Context())

	response := HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		History:       history,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
	if h.runs != nil {
		response.LiveRuns = h.runs.LiveCount()
	}

	writeJSON(w, http.StatusOK, response)
}

// Ready returns 503 while the history store is unreachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	history, ready := h.historyStatus(r.Context())

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{Ready: ready, History: history})
}
