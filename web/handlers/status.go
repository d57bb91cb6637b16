package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/scrypster/rallygraph/internal/availability"
)

// Version is reported by GET /api/health.
const Version = "1.0.0"

// StatusSource exposes subsystem availability; implemented by
// *availability.Gate.
type StatusSource interface {
	CheckAll(ctx context.Context) []availability.Status
}

// StatusHandler serves the health and status endpoints.
type StatusHandler struct {
	gate StatusSource
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(gate StatusSource) *StatusHandler {
	return &StatusHandler{gate: gate}
}

// Health handles GET /api/health. It never touches a subsystem.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: Version})
}

// Status handles GET /api/status. Subsystems that are due are probed.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	snapshot := h.gate.CheckAll(r.Context())
	respondJSON(w, http.StatusOK, StatusResponse{
		Subsystems: availability.States(snapshot),
		Errors:     availability.Errors(snapshot),
		CheckedAt:  time.Now().UTC(),
	})
}
