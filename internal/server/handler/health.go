package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Checker probes one backing dependency.
type Checker func(ctx context.Context) error

// HealthHandler serves the health-check endpoint. Registered checkers cover
// optional backends (redis, postgres, blob storage); the node itself is
// healthy as long as the ledger is open.
type HealthHandler struct {
	checks map[string]Checker
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided logger.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		checks: make(map[string]Checker),
		logger: logger,
	}
}

// AddCheck registers a named dependency probe. Not safe to call after the
// server starts.
func (h *HealthHandler) AddCheck(name string, check Checker) {
	h.checks[name] = check
}

// HealthCheck responds with a JSON status. Overall status is "degraded" when
// any dependency probe fails; the node still serves reads in that state.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = "degraded"
			deps[name] = err.Error()
			h.logger.WarnContext(r.Context(), "health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
