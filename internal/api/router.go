package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	if s.limiters != nil {
		r.Use(s.rateLimitMiddleware)
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Token exchange (no auth required; the operator key is the credential)
		r.Post("/auth/token", s.handleToken)

		// WebSocket (auth via single-use ticket; browsers cannot set an
		// Authorization header on the upgrade request)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - callers must hold a valid
			// token to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Door endpoints
			r.Route("/door", func(r chi.Router) {
				r.Get("/", s.handleDoorStatus)
				r.Post("/unlock", s.handleUnlock)
				r.Post("/lock", s.handleLock)
			})

			// Event log
			r.Get("/events", s.handleListEvents)

			// Relay identity management (admin only)
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/relay", s.handleGetRelay)
				r.Put("/relay", s.handleRebindRelay)
			})
		})
	})

	return r
}

// handleHealth returns the server health status. relay_online reads the
// supervisor state without touching the command gate, so this stays cheap
// and answers while a command is in flight.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      s.version,
		"relay_online": s.relaySup.IsOnline(),
	})
}
