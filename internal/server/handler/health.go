package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a dependency whose liveness the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode    string
	started time.Time
	checks  map[string]Pinger
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. checks are optional named
// dependencies (redis, postgres) pinged on every request.
func NewHealthHandler(mode string, checks map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{mode: mode, started: time.Now(), checks: checks, logger: logger}
}

// HealthCheck reports liveness and the state of each dependency. Any failing
// dependency turns the response into a 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "handler: health dependency down",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = "down"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"mode":           h.mode,
		"dependencies":   deps,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
