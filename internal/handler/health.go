package handler

import (
	"net/http"
)

// ReadinessChecker reports whether the gateway connection is up.
type ReadinessChecker interface {
	Connected() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	gateway ReadinessChecker
	name    string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(gateway ReadinessChecker, name string) *HealthHandler {
	return &HealthHandler{
		gateway: gateway,
		name:    name,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil || !h.gateway.Connected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": h.name + " gateway not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
