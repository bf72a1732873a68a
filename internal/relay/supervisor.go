package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Supervisor keeps one session to the relay gateway alive.
//
// It owns the full connection lifecycle: dial, handshake, watch, teardown,
// redial. On any failure or drop it retries forever at a fixed interval;
// there is no attempt cap. Connection failures are never surfaced to
// callers: Start returns immediately and callers observe availability
// only through IsOnline.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Supervisor struct {
	cfg     Config
	factory SessionFactory

	mu       sync.RWMutex
	identity Identity
	state    ConnectionState
	session  Session
	cancel   context.CancelFunc

	rebindCh chan struct{}
	running  atomic.Bool
	done     *closeOnce
	wg       sync.WaitGroup

	sinkMu sync.RWMutex
	sink   EventSink

	loggerMu sync.RWMutex
	logger   Logger

	// Statistics
	connectsTotal atomic.Uint64
	dropsTotal    atomic.Uint64
	rebindsTotal  atomic.Uint64
	lastConnected atomic.Int64 // Unix timestamp
}

// SupervisorStats is a point-in-time snapshot of supervisor activity.
type SupervisorStats struct {
	State         ConnectionState `json:"state"`
	ConnectsTotal uint64          `json:"connects_total"`
	DropsTotal    uint64          `json:"drops_total"`
	RebindsTotal  uint64          `json:"rebinds_total"`
	LastConnected time.Time       `json:"last_connected,omitempty"`
	Session       SessionStats    `json:"session"`
}

// NewSupervisor builds a supervisor bound to the given identity. A nil
// factory uses NewNetSession. Call Start to begin connecting.
func NewSupervisor(id Identity, factory SessionFactory, cfg Config) *Supervisor {
	if factory == nil {
		factory = func(id Identity, cfg Config) Session {
			return NewNetSession(id, cfg)
		}
	}
	return &Supervisor{
		cfg:      cfg.withDefaults(),
		factory:  factory,
		identity: id,
		state:    StateDisconnected,
		rebindCh: make(chan struct{}, 1),
		done:     newCloseOnce(),
		sink:     noopSink{},
		logger:   noopLogger{},
	}
}

// Start launches the connect loop in the background. Idempotent: calling
// while already running is a no-op. The loop stops when ctx is cancelled
// or Stop is called.
func (s *Supervisor) Start(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx)
}

// run is the connect loop: dial, watch, tear down, wait, repeat.
func (s *Supervisor) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done.Done():
			return
		default:
		}

		// A pending rebind signal is already honoured by the identity
		// read below, so drop it rather than tear down the next session.
		select {
		case <-s.rebindCh:
		default:
		}

		id := s.CurrentIdentity()

		s.mu.Lock()
		s.state = StateConnecting
		s.mu.Unlock()

		sess := s.factory(id, s.cfg)
		dropped := make(chan error, 1)
		sess.SetOnClosed(func(err error) {
			select {
			case dropped <- err:
			default:
			}
		})
		sess.SetOnState(s.forwardStatePush)

		if err := sess.Connect(ctx); err != nil {
			s.mu.Lock()
			s.state = StateDisconnected
			s.mu.Unlock()

			s.log().Warn("relay connect failed, will retry",
				"addr", id.Addr,
				"retry_in", s.cfg.RetryDelay,
				"error", err,
			)
			if !s.sleep(ctx, s.cfg.RetryDelay) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.session = sess
		s.state = StateConnected
		s.mu.Unlock()

		s.connectsTotal.Add(1)
		s.lastConnected.Store(time.Now().Unix())
		s.log().Info("relay online", "addr", id.Addr, "device_id", id.DeviceID)
		s.emitAvailability(EventOnline, true)

		select {
		case err := <-dropped:
			s.release()
			s.dropsTotal.Add(1)
			s.log().Warn("relay connection lost, will retry",
				"retry_in", s.cfg.RetryDelay,
				"error", err,
			)
			s.emitAvailability(EventOffline, false)
			if !s.sleep(ctx, s.cfg.RetryDelay) {
				return
			}

		case <-s.rebindCh:
			s.release()
			// Best-effort teardown; the old gateway may already be gone.
			_ = sess.Disconnect()
			s.log().Info("relay identity replaced, reconnecting",
				"addr", s.CurrentIdentity().Addr,
				"settle", s.cfg.SettleDelay,
			)
			s.emitAvailability(EventOffline, false)
			if !s.sleep(ctx, s.cfg.SettleDelay) {
				return
			}

		case <-ctx.Done():
			s.shutdownSession(sess)
			return

		case <-s.done.Done():
			s.shutdownSession(sess)
			return
		}
	}
}

// release drops the current session reference and marks us disconnected.
func (s *Supervisor) release() {
	s.mu.Lock()
	s.session = nil
	s.state = StateDisconnected
	s.mu.Unlock()
}

func (s *Supervisor) shutdownSession(sess Session) {
	s.release()
	_ = sess.Disconnect()
	s.emitAvailability(EventOffline, false)
}

// sleep waits for d, returning false if shutdown arrived first.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.done.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Stop terminates the connect loop, tears down any live session and waits
// for the loop goroutine to exit. Safe to call multiple times. The
// supervisor cannot be restarted after Stop.
func (s *Supervisor) Stop() {
	s.done.Close()

	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	s.wg.Wait()
	s.log().Info("relay supervisor stopped")
}

// IsOnline reports whether a live session is established. Non-blocking.
func (s *Supervisor) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateConnected
}

// State returns the current connection state.
func (s *Supervisor) State() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Session returns the live session, or ErrOffline when disconnected.
func (s *Supervisor) Session() (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateConnected || s.session == nil {
		return nil, ErrOffline
	}
	return s.session, nil
}

// CurrentIdentity returns the identity the supervisor is bound to.
func (s *Supervisor) CurrentIdentity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Rebind replaces the relay identity. Any live session is torn down
// best-effort and the loop re-dials the new address after the settle
// delay. Takes effect on the next attempt even while disconnected.
func (s *Supervisor) Rebind(id Identity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()

	s.rebindsTotal.Add(1)

	select {
	case s.rebindCh <- struct{}{}:
	default:
		// A rebind is already pending; identity is read fresh each attempt.
	}

	ev := newEvent(EventRebound)
	ev.Source = SourceSystem
	ev.Online = s.IsOnline()
	s.publish(ev)
}

// forwardStatePush publishes unsolicited device state changes, e.g. the
// relay toggled by a physical switch.
func (s *Supervisor) forwardStatePush(on bool) {
	ev := newEvent(EventDeviceState)
	ev.Source = SourceDevice
	ev.State = stateFromRelay(on)
	ev.Online = true
	s.publish(ev)
}

func (s *Supervisor) emitAvailability(t EventType, online bool) {
	ev := newEvent(t)
	ev.Source = SourceSystem
	ev.Online = online
	s.publish(ev)
}

func (s *Supervisor) publish(ev Event) {
	s.sinkMu.RLock()
	sink := s.sink
	s.sinkMu.RUnlock()

	if sink != nil {
		sink.Publish(ev)
	}
}

// SetEventSink sets the sink for availability and device events.
func (s *Supervisor) SetEventSink(sink EventSink) {
	s.sinkMu.Lock()
	s.sink = sink
	s.sinkMu.Unlock()
}

// SetLogger sets the logger for this supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Supervisor) log() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// Stats returns a snapshot of supervisor counters, including the live
// session's counters when connected.
func (s *Supervisor) Stats() SupervisorStats {
	st := SupervisorStats{
		State:         s.State(),
		ConnectsTotal: s.connectsTotal.Load(),
		DropsTotal:    s.dropsTotal.Load(),
		RebindsTotal:  s.rebindsTotal.Load(),
	}
	if ts := s.lastConnected.Load(); ts > 0 {
		st.LastConnected = time.Unix(ts, 0)
	}
	if sess, err := s.Session(); err == nil {
		st.Session = sess.Stats()
	}
	return st
}
