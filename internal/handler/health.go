package handler

import (
	"net/http"

	"github.com/tetsy-ai/negotiation-platform/internal/stream"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	streamClient *stream.Client
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(streamClient *stream.Client) *HealthHandler {
	return &HealthHandler{
		streamClient: streamClient,
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
	// The change feed is the only external dependency.
	if h.streamClient == nil || !h.streamClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
