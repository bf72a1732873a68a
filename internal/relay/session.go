package relay

import (
	"context"
	"sync"
	"time"
)

// Session is a single live connection to the relay gateway. A session is
// one-shot: once closed (explicitly or by an I/O error) it cannot be
// reconnected; the supervisor builds a fresh one per attempt.
//
// Implementations must be safe for concurrent use.
type Session interface {
	// Connect dials the gateway and performs the hello handshake. It must
	// be called exactly once, before any command.
	Connect(ctx context.Context) error

	// Disconnect tears the session down and waits for its goroutines to
	// exit. Safe to call multiple times. The OnClosed callback is not
	// invoked for an explicit disconnect.
	Disconnect() error

	// SendCommand drives the relay output. true releases the door,
	// false locks it.
	SendCommand(ctx context.Context, on bool) error

	// QueryState reads the current relay output without changing it.
	QueryState(ctx context.Context) (bool, error)

	// SetOnClosed registers a callback invoked at most once when the
	// session dies unexpectedly. Must be set before Connect.
	SetOnClosed(fn func(err error))

	// SetOnState registers a callback for unsolicited state pushes from
	// the gateway (e.g. a physical toggle). Must be set before Connect.
	SetOnState(fn func(on bool))

	// Stats returns a snapshot of session counters.
	Stats() SessionStats
}

// SessionFactory builds an unconnected session for the given identity.
// The supervisor calls it once per connection attempt.
type SessionFactory func(id Identity, cfg Config) Session

// SessionStats is a point-in-time snapshot of session activity.
type SessionStats struct {
	Connected     bool      `json:"connected"`
	FramesTx      uint64    `json:"frames_tx"`
	FramesRx      uint64    `json:"frames_rx"`
	FramesDropped uint64    `json:"frames_dropped"`
	ErrorsTotal   uint64    `json:"errors_total"`
	LastActivity  time.Time `json:"last_activity,omitempty"`
}

// closeOnce wraps a channel that can be closed exactly once, for
// signalling shutdown to multiple goroutines.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

func (c *closeOnce) IsClosed() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}
