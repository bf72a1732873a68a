package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/latch-core/internal/relay"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"

	// Relay command failures. Offline and busy are retryable conditions on
	// this service; command_failed means the gateway itself misbehaved.
	ErrCodeRelayOffline       = "relay_offline"
	ErrCodeRelayBusy          = "relay_busy"
	ErrCodeRelayCommandFailed = "relay_command_failed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeRelayError maps a relay command error to an HTTP response.
//
// Offline and busy are checked before command_failed: a command that died
// because the link dropped mid-flight wraps both sentinels, and 503 is the
// accurate answer for the client in that case.
func writeRelayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, relay.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, ErrCodeRelayOffline, "relay device is offline")
	case errors.Is(err, relay.ErrBusy):
		writeError(w, http.StatusServiceUnavailable, ErrCodeRelayBusy, "another door command is in progress")
	case errors.Is(err, relay.ErrCommandFailed):
		writeError(w, http.StatusBadGateway, ErrCodeRelayCommandFailed, "relay device rejected the command")
	default:
		writeInternalError(w, "door command failed")
	}
}
