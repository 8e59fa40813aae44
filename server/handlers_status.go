package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HandleStatus handles GET /status: a small operational snapshot of the
// polling scheduler and its subscribers.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rooms := h.scheduler.Hub().RoomCounts()
	subscribers := 0
	for _, n := range rooms {
		subscribers += n
	}
	status := map[string]any{
		"uptime":      time.Since(h.startedAt).Round(time.Second).String(),
		"activeRooms": h.scheduler.Registry().Len(),
		"subscribers": subscribers,
		"rooms":       rooms,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
