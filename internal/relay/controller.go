package relay

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SessionSource supplies the controller with connectivity. *Supervisor
// satisfies it.
type SessionSource interface {
	// IsOnline is a non-blocking read of connection state.
	IsOnline() bool

	// Session returns the live session, or ErrOffline when disconnected.
	Session() (Session, error)
}

// Controller is the command gate for the door relay.
//
// It serialises mutating commands: at most one unlock/lock cycle is in
// flight at a time, tracked by a busy flag. A successful unlock arms a
// one-shot auto-lock timer and the gate stays busy until that timer
// completes (or a manual lock preempts it). Status reads bypass the gate
// entirely.
//
// Every gate cycle carries a generation token, bumped whenever a pending
// auto-lock is cancelled or replaced. The timer callback and all deferred
// busy-clears re-check their token under the mutex, so a superseded cycle
// can never release a gate acquired by a later command.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Controller struct {
	source SessionSource
	cfg    Config

	mu     sync.Mutex
	busy   bool
	gen    uint64
	timer  *time.Timer
	fireAt time.Time
	closed bool

	// sendMu serialises device writes. Held for the full duration of a
	// send so two mutating frames can never reach the gateway out of
	// issue order (a manual lock overlapping an unlock's in-flight send
	// must land after it, or the door ends released while reported
	// locked).
	sendMu sync.Mutex

	sinkMu sync.RWMutex
	sink   EventSink

	loggerMu sync.RWMutex
	logger   Logger
}

// NewController builds a controller on top of the given session source.
// Zero config fields are filled with defaults.
func NewController(source SessionSource, cfg Config) *Controller {
	return &Controller{
		source: source,
		cfg:    cfg.withDefaults(),
		sink:   noopSink{},
		logger: noopLogger{},
	}
}

// Unlock releases the door and arms the auto-lock timer.
//
// Fails with ErrOffline when no session is live (the device is never
// touched), ErrBusy when another mutating cycle is still in flight, and
// ErrCommandFailed when the device rejects or the session dies mid-send.
// On success the gate stays busy until the auto-lock completes.
//
// Parameters:
//   - ctx: Context for cancellation; the device send is additionally
//     capped by CommandTimeout.
//   - origin: Who asked, recorded on the emitted event.
//
// Returns:
//   - UnlockResult: Door state, unlock window and its expiry.
//   - error: nil on success.
func (c *Controller) Unlock(ctx context.Context, origin Origin) (UnlockResult, error) {
	if !c.source.IsOnline() {
		return UnlockResult{}, ErrOffline
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return UnlockResult{}, ErrControllerClosed
	}
	if c.busy {
		c.mu.Unlock()
		return UnlockResult{}, ErrBusy
	}
	c.busy = true
	// Defensive: the gate was idle, so no auto-lock should be armed.
	c.cancelAutoLockLocked()
	gen := c.gen
	c.mu.Unlock()

	start := time.Now()
	if err := c.send(ctx, true); err != nil {
		c.clearBusy(gen)
		c.emitFailure(origin, err, start)
		return UnlockResult{}, fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}

	c.mu.Lock()
	expiresAt := time.Now().Add(c.cfg.UnlockDuration)
	if c.gen == gen && c.busy {
		c.fireAt = expiresAt
		c.timer = time.AfterFunc(c.cfg.UnlockDuration, func() { c.autoLock(gen) })
	}
	// Otherwise a manual lock overlapped the send and won; the door is
	// locked again and the gate already released.
	c.mu.Unlock()

	c.log().Info("door unlocked",
		"duration", c.cfg.UnlockDuration,
		"source", origin.Source,
		"actor", origin.Actor,
	)

	ev := newEvent(EventUnlocked)
	ev.Source = origin.Source
	ev.Actor = origin.Actor
	ev.State = DoorUnlocked
	ev.Online = true
	ev.DurationMS = c.cfg.UnlockDuration.Milliseconds()
	ev.LatencyMS = time.Since(start).Milliseconds()
	c.publish(ev)

	return UnlockResult{
		State:     DoorUnlocked,
		Duration:  c.cfg.UnlockDuration,
		ExpiresAt: expiresAt,
	}, nil
}

// Lock forces the door locked immediately.
//
// It cancels any pending auto-lock and proceeds regardless of the busy
// flag: a manual lock always wins, even against an unlock still in
// flight. When an unlock send has not yet settled, Lock waits for it and
// then issues its own frame, so the lock command is always the last one
// the gateway executes. Fails with ErrOffline when no session is live
// and ErrCommandFailed on device errors; the gate is released either
// way.
func (c *Controller) Lock(ctx context.Context, origin Origin) error {
	if !c.source.IsOnline() {
		return ErrOffline
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	c.cancelAutoLockLocked()
	c.busy = true
	gen := c.gen
	c.mu.Unlock()

	start := time.Now()
	err := c.send(ctx, false)
	c.clearBusy(gen)

	if err != nil {
		c.emitFailure(origin, err, start)
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}

	c.log().Info("door locked",
		"source", origin.Source,
		"actor", origin.Actor,
	)

	ev := newEvent(EventLocked)
	ev.Source = origin.Source
	ev.Actor = origin.Actor
	ev.State = DoorLocked
	ev.Online = true
	ev.LatencyMS = time.Since(start).Milliseconds()
	c.publish(ev)

	return nil
}

// Status queries the live door state. It never takes the gate, so it
// works while an unlock cycle is in flight.
//
// When the relay is offline it degrades instead of failing: the result
// carries Online false and DoorUnknown with a nil error. A device error
// on the query itself returns ErrCommandFailed.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	sess, err := c.source.Session()
	if err != nil {
		return Status{Online: false, State: DoorUnknown}, nil
	}

	qctx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
	defer cancel()

	on, err := sess.QueryState(qctx)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	return Status{Online: true, State: stateFromRelay(on)}, nil
}

// autoLock is the timer callback: it locks the door and releases the
// gate. gen identifies the unlock cycle that armed it; if the cycle was
// superseded in the meantime the callback abandons silently.
func (c *Controller) autoLock(gen uint64) {
	c.mu.Lock()
	if c.closed || c.gen != gen || !c.busy {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.fireAt = time.Time{}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommandTimeout)
	defer cancel()

	start := time.Now()
	err := c.send(ctx, false)
	superseded := !c.clearBusy(gen)

	if err != nil {
		// The gate is released regardless: a failed relock must not
		// wedge the controller. The door needs manual attention.
		c.log().Error("auto-lock failed, door state requires verification",
			"error", err,
		)
		ev := newEvent(EventAutoLockFailed)
		ev.Source = SourceAuto
		ev.State = DoorUnknown
		ev.Online = c.source.IsOnline()
		ev.Error = err.Error()
		c.publish(ev)
		return
	}

	if superseded {
		// A manual lock overlapped the relock send; it already owns the
		// outcome and emitted its event.
		c.log().Debug("auto-lock completed after manual lock")
		return
	}

	c.log().Info("door auto-locked", "after", c.cfg.UnlockDuration)

	ev := newEvent(EventAutoLocked)
	ev.Source = SourceAuto
	ev.State = DoorLocked
	ev.Online = true
	ev.LatencyMS = time.Since(start).Milliseconds()
	c.publish(ev)
}

// send issues one relay command through the current session with a
// bounded deadline. Sends are mutually exclusive: a caller blocks here
// until any in-flight command write has settled, so its own frame is
// guaranteed to reach the gateway last.
func (c *Controller) send(ctx context.Context, on bool) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	sess, err := c.source.Session()
	if err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
	defer cancel()

	return sess.SendCommand(sctx, on)
}

// cancelAutoLockLocked invalidates any armed auto-lock. Bumping the
// generation is what actually defuses a timer that has already fired but
// not yet run. Caller must hold c.mu.
func (c *Controller) cancelAutoLockLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.fireAt = time.Time{}
}

// clearBusy releases the gate if it is still owned by cycle gen. Returns
// false when the cycle was superseded and the gate left alone.
func (c *Controller) clearBusy(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.busy = false
	return true
}

// Busy reports whether a mutating cycle (command or pending auto-lock)
// is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// PendingAutoLock returns the fire time of the armed auto-lock, if any.
func (c *Controller) PendingAutoLock() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer == nil {
		return time.Time{}, false
	}
	return c.fireAt, true
}

// Close shuts the controller down. If an auto-lock was still pending the
// door is presumed open, so a best-effort immediate lock is sent before
// giving up the session. Subsequent commands fail with
// ErrControllerClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	armed := c.timer != nil
	c.cancelAutoLockLocked()
	c.busy = false
	c.closed = true
	c.mu.Unlock()

	if !armed {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommandTimeout)
	defer cancel()

	if err := c.send(ctx, false); err != nil {
		c.log().Error("failed to lock door on shutdown", "error", err)
		return err
	}

	c.log().Info("door locked on shutdown")

	ev := newEvent(EventLocked)
	ev.Source = SourceSystem
	ev.State = DoorLocked
	ev.Online = true
	c.publish(ev)
	return nil
}

// emitFailure publishes a command_failed event.
func (c *Controller) emitFailure(origin Origin, err error, start time.Time) {
	ev := newEvent(EventCommandFailed)
	ev.Source = origin.Source
	ev.Actor = origin.Actor
	ev.State = DoorUnknown
	ev.Online = c.source.IsOnline()
	ev.Error = err.Error()
	ev.LatencyMS = time.Since(start).Milliseconds()
	c.publish(ev)
}

func (c *Controller) publish(ev Event) {
	c.sinkMu.RLock()
	sink := c.sink
	c.sinkMu.RUnlock()

	if sink != nil {
		sink.Publish(ev)
	}
}

// SetEventSink sets the sink for door events.
func (c *Controller) SetEventSink(sink EventSink) {
	c.sinkMu.Lock()
	c.sink = sink
	c.sinkMu.Unlock()
}

// SetLogger sets the logger for this controller.
func (c *Controller) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Controller) log() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
