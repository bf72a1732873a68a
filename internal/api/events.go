package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/latch-core/internal/events"
)

// handleListEvents returns paginated door events with optional filters.
//
// Query parameters:
//   - type: filter by event type (unlocked, locked, auto_locked, ...)
//   - source: filter by origin (api, mqtt, auto, device, system)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeInternalError(w, "event log not configured")
		return
	}

	q := r.URL.Query()
	filter := events.Filter{
		Type:   q.Get("type"),
		Source: q.Get("source"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list door events", "error", err)
		writeInternalError(w, "failed to list door events")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
