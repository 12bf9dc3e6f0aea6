package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"sniper-engine/internal/container"
)

// AlgoSnapshotProvider is satisfied by *container.Container; declared
// as an interface so handler tests can supply a fake instead of wiring
// a real Algo Container.
type AlgoSnapshotProvider interface {
	Statuses() []container.AlgoStatus
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	provider AlgoSnapshotProvider
	logger   *slog.Logger
}

// NewHandlers builds a Handlers backed by provider.
func NewHandlers(provider AlgoSnapshotProvider, logger *slog.Logger) *Handlers {
	return &Handlers{provider: provider, logger: logger.With("component", "api-handlers")}
}

// HandleHealth is a liveness probe: if this process can answer HTTP at
// all, it reports ok.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleAlgos returns every currently-registered algo's state and
// counters.
func (h *Handlers) HandleAlgos(w http.ResponseWriter, r *http.Request) {
	statuses := h.provider.Statuses()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(statuses); err != nil {
		h.logger.Error("failed to encode algo statuses", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
}
