package handler

import (
	"log/slog"
	"net/http"

	"github.com/prophetlabs/prophetd/internal/domain"
)

// EventsHandler serves the archived event listing.
type EventsHandler struct {
	archive domain.EventArchive
	logger  *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(archive domain.EventArchive, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{archive: archive, logger: logger}
}

// ListEvents returns archived engine events, newest first.
// GET /api/events?limit=50&offset=0&since=RFC3339&until=RFC3339
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	events, err := h.archive.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list events failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []domain.ArchivedEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}
