package handler

import (
	"net/http"
	"time"

	"github.com/prophetlabs/prophetd/internal/domain"
)

// StatusQueries is the small engine surface the status endpoint reports on.
type StatusQueries interface {
	LastTokenID() (domain.TokenID, error)
}

// StatusHandler serves node status for dashboards.
type StatusHandler struct {
	engine    StatusQueries
	mode      string
	startedAt time.Time
	pending   func() int
}

// NewStatusHandler creates a StatusHandler. pending reports the event
// fan-out backlog and may be nil.
func NewStatusHandler(engine StatusQueries, mode string, startedAt time.Time, pending func() int) *StatusHandler {
	return &StatusHandler{
		engine:    engine,
		mode:      mode,
		startedAt: startedAt,
		pending:   pending,
	}
}

// GetStatus responds with the node mode, uptime, token counter, and event
// backlog.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	resp := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": uptime,
	}
	if last, err := h.engine.LastTokenID(); err == nil {
		resp["last_token_id"] = last
	}
	if h.pending != nil {
		resp["pending_events"] = h.pending()
	}

	writeJSON(w, http.StatusOK, resp)
}
