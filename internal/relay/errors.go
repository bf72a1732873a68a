package relay

import "errors"

// Domain errors for the relay package.
var (
	// ErrOffline is returned when a mutating command arrives while the
	// supervisor has no live session. Callers map this to 503.
	ErrOffline = errors.New("relay: device offline")

	// ErrBusy is returned when an unlock arrives while another mutating
	// command (or its pending auto-lock) is still in flight.
	ErrBusy = errors.New("relay: command already in progress")

	// ErrCommandFailed wraps any session error raised while executing a
	// command against the device.
	ErrCommandFailed = errors.New("relay: command failed")

	// ErrNotConnected is returned when a session operation requires a live
	// connection but the session is not connected.
	ErrNotConnected = errors.New("relay: not connected to gateway")

	// ErrConnectFailed is returned when dialing the gateway fails.
	ErrConnectFailed = errors.New("relay: connection to gateway failed")

	// ErrHandshakeFailed is returned when the gateway rejects the hello
	// exchange, typically a wrong device id or local key.
	ErrHandshakeFailed = errors.New("relay: gateway handshake failed")

	// ErrSessionClosed is returned when an operation is attempted on a
	// session that has already been torn down.
	ErrSessionClosed = errors.New("relay: session closed")

	// ErrControllerClosed is returned when a command arrives after the
	// controller has shut down.
	ErrControllerClosed = errors.New("relay: controller closed")
)
