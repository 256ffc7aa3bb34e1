package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for room connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleConnection upgrades the request. An optional roomId query parameter
// joins that room immediately; otherwise the client sends a join message.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")

	// Upgrade writes its own HTTP error response on failure
	if err := h.connectionManager.UpgradeConnection(w, r, roomID); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.HandleConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
