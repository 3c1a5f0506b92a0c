package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/weddary/weddary/internal/http/httperr"
	"github.com/weddary/weddary/internal/observability/logger"
)

// Pinger reports backing-store reachability. Nil disables the readiness probe
// dependency (dev mode with the in-memory store).
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	store Pinger
}

func NewHealthHandlers(store Pinger) *HealthHandlers {
	return &HealthHandlers{store: store}
}

// Health handles GET /healthz: process liveness only.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	httperr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /readyz: liveness plus store reachability.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			logger.From(r.Context()).Warn("readiness probe failed", logger.Err(err))
			httperr.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	httperr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
