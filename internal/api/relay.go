package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nerrad567/latch-core/internal/relay"
)

// relayIdentity is the wire shape of a relay identity. The key is always
// redacted on the way out.
type relayIdentity struct {
	DeviceID string `json:"device_id"`
	Key      string `json:"key"`
	Addr     string `json:"addr"`
	Version  string `json:"version"`
}

// relayStatusResponse is the body for GET /relay.
type relayStatusResponse struct {
	Identity   relayIdentity         `json:"identity"`
	Online     bool                  `json:"online"`
	Busy       bool                  `json:"busy"`
	AutoLockAt string                `json:"auto_lock_at,omitempty"`
	Supervisor relay.SupervisorStats `json:"supervisor"`
}

// rebindRequest is the body for PUT /relay. Empty fields inherit the
// current identity, so a bare {"addr": "10.0.0.5:6668"} moves the
// gateway address without re-entering the key.
type rebindRequest struct {
	DeviceID string `json:"device_id"`
	Key      string `json:"key"`
	Addr     string `json:"addr"`
	Version  string `json:"version"`
}

// rebindResponse is the body for an accepted PUT /relay.
type rebindResponse struct {
	Status   string        `json:"status"`
	Identity relayIdentity `json:"identity"`
}

// handleGetRelay reports the current relay identity and supervisor state.
// Admin only.
func (s *Server) handleGetRelay(w http.ResponseWriter, _ *http.Request) {
	id := s.relaySup.CurrentIdentity().Redacted()

	resp := relayStatusResponse{
		Identity:   toWireIdentity(id),
		Online:     s.relaySup.IsOnline(),
		Busy:       s.door.Busy(),
		Supervisor: s.relaySup.Stats(),
	}
	if at, ok := s.door.PendingAutoLock(); ok {
		resp.AutoLockAt = at.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRebindRelay replaces the relay identity and asks the supervisor to
// reconnect. The change is not persisted; the configured identity returns
// at the next restart. Admin only.
func (s *Server) handleRebindRelay(w http.ResponseWriter, r *http.Request) {
	var req rebindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" && req.Key == "" && req.Addr == "" && req.Version == "" {
		writeBadRequest(w, "at least one identity field must be set")
		return
	}

	// Merge against the live identity, not the redacted copy.
	id := s.relaySup.CurrentIdentity()
	if req.DeviceID != "" {
		id.DeviceID = req.DeviceID
	}
	if req.Key != "" {
		id.Key = req.Key
	}
	if req.Addr != "" {
		id.Addr = req.Addr
	}
	if req.Version != "" {
		id.Version = req.Version
	}

	s.relaySup.Rebind(id)

	s.logger.Info("relay identity rebind requested",
		"device_id", id.DeviceID,
		"addr", id.Addr,
		"actor", subjectFrom(r.Context()),
	)

	writeJSON(w, http.StatusAccepted, rebindResponse{
		Status:   "rebinding",
		Identity: toWireIdentity(id.Redacted()),
	})
}

// toWireIdentity converts a relay identity to its JSON shape.
func toWireIdentity(id relay.Identity) relayIdentity {
	return relayIdentity{
		DeviceID: id.DeviceID,
		Key:      id.Key,
		Addr:     id.Addr,
		Version:  id.Version,
	}
}
