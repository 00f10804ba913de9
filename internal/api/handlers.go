package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	provider SnapshotProvider
	logger   *slog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(provider SnapshotProvider, logger *slog.Logger) *Handlers {
	return &Handlers{
		provider: provider,
		logger:   logger.With("component", "api-handlers"),
	}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleSnapshot returns the current orchestrator activity snapshot.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot := h.provider.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		h.logger.Error("failed to encode snapshot", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
}
