package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/quadscalp/internal/domain"
	"github.com/alanyoungcy/quadscalp/internal/state"
)

// UpstreamProber reports the backend's health.
type UpstreamProber interface {
	Health(ctx context.Context) (domain.HealthStatus, error)
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	store    *state.Store
	upstream UpstreamProber
	logger   *slog.Logger
}

// NewHealthHandler creates a HealthHandler. upstream may be nil.
func NewHealthHandler(store *state.Store, upstream UpstreamProber, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, upstream: upstream, logger: logHandler(logger, "health")}
}

type healthResponse struct {
	Status     string                 `json:"status"`
	Timestamp  string                 `json:"timestamp"`
	Connection domain.ConnectionState `json:"connection"`
	Upstream   *domain.HealthStatus   `json:"upstream,omitempty"`
	Error      string                 `json:"upstream_error,omitempty"`
}

// HealthCheck reports the local connection flag and, when a prober is set,
// the upstream's own health. The endpoint answers 200 even when the upstream
// is down; status turns "degraded".
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Connection: h.store.Connection(),
	}
	if !resp.Connection.Connected {
		resp.Status = "degraded"
	}

	if h.upstream != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		hs, err := h.upstream.Health(ctx)
		if err != nil {
			h.logger.WarnContext(r.Context(), "upstream health probe failed", slog.String("error", err.Error()))
			resp.Status = "degraded"
			resp.Error = err.Error()
		} else {
			resp.Upstream = &hs
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
