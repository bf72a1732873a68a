package api

import (
	"net/http"
	"time"

	"github.com/nerrad567/latch-core/internal/relay"
)

// unlockResponse is the body for a successful POST /door/unlock.
type unlockResponse struct {
	State      string `json:"state"`
	DurationMS int64  `json:"duration_ms"`
	ExpiresAt  string `json:"expires_at"`
}

// lockResponse is the body for a successful POST /door/lock.
type lockResponse struct {
	State string `json:"state"`
}

// handleUnlock releases the door for the configured unlock window. The
// controller re-locks automatically when the window expires.
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	origin := relay.Origin{Source: relay.SourceAPI, Actor: subjectFrom(r.Context())}

	result, err := s.door.Unlock(r.Context(), origin)
	if err != nil {
		s.logger.Warn("unlock failed", "actor", origin.Actor, "error", err)
		writeRelayError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, unlockResponse{
		State:      string(result.State),
		DurationMS: result.Duration.Milliseconds(),
		ExpiresAt:  result.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// handleLock locks the door immediately. A pending auto-lock is cancelled;
// locking an already-locked door succeeds.
func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	origin := relay.Origin{Source: relay.SourceAPI, Actor: subjectFrom(r.Context())}

	if err := s.door.Lock(r.Context(), origin); err != nil {
		s.logger.Warn("lock failed", "actor", origin.Actor, "error", err)
		writeRelayError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, lockResponse{State: string(relay.DoorLocked)})
}

// handleDoorStatus reports the live door state. It works while a command
// is in flight and degrades to online=false / state=unknown when the relay
// is unreachable.
func (s *Server) handleDoorStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.door.Status(r.Context())
	if err != nil {
		s.logger.Warn("door status query failed", "error", err)
		writeRelayError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
