package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/latch-core/internal/events"
	"github.com/nerrad567/latch-core/internal/infrastructure/config"
	"github.com/nerrad567/latch-core/internal/infrastructure/database"
	"github.com/nerrad567/latch-core/internal/infrastructure/logging"
	"github.com/nerrad567/latch-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/latch-core/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DoorController executes door commands through the single-flight gate.
// Satisfied by *relay.Controller.
type DoorController interface {
	Unlock(ctx context.Context, origin relay.Origin) (relay.UnlockResult, error)
	Lock(ctx context.Context, origin relay.Origin) error
	Status(ctx context.Context) (relay.Status, error)
	Busy() bool
	PendingAutoLock() (time.Time, bool)
}

// RelaySupervisor exposes the connection lifecycle surface the API needs.
// Satisfied by *relay.Supervisor.
type RelaySupervisor interface {
	IsOnline() bool
	CurrentIdentity() relay.Identity
	Rebind(id relay.Identity)
	Stats() relay.SupervisorStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Door        DoorController
	Relay       RelaySupervisor
	Events      events.Repository // optional: GET /events returns an error without it
	MQTT        *mqtt.Client      // optional: reported in /metrics
	DB          *database.DB      // optional: reported in /metrics
	ExternalHub *Hub              // if set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for Latch Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	door      DoorController
	relaySup  RelaySupervisor
	events    events.Repository
	mqtt      *mqtt.Client
	db        *database.DB
	version   string
	startTime time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool // true if hub was injected externally
	tickets     *ticketStore
	limiters    *limiterStore // nil when rate limiting is disabled
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Door == nil {
		return nil, fmt.Errorf("door controller is required")
	}
	if deps.Relay == nil {
		return nil, fmt.Errorf("relay supervisor is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		door:      deps.Door,
		relaySup:  deps.Relay,
		events:    deps.Events,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}

	if deps.Security.RateLimit.Enabled && deps.Security.RateLimit.RequestsPerMinute > 0 {
		s.limiters = newLimiterStore(deps.Security.RateLimit.RequestsPerMinute)
	}

	// Use externally-provided hub if available (needed when another
	// component also broadcasts through it).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the server's WebSocket hub, creating it lazily so callers can
// wire it as an event sink before Start().
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and ticket cleanup, and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create WebSocket hub (unless one was injected externally or already
	// requested via Hub())
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	// Start periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

	if s.limiters != nil {
		go s.cleanLimitersLoop(srvCtx)
	}

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
