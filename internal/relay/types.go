package relay

import "time"

// ConnectionState describes the supervisor's view of the relay link.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// DoorState is a point-in-time projection of the relay output. It is
// always derived from a live device query or command acknowledgement,
// never cached.
type DoorState string

const (
	DoorLocked   DoorState = "locked"
	DoorUnlocked DoorState = "unlocked"
	DoorUnknown  DoorState = "unknown"
)

// stateFromRelay maps the raw relay output to a door state. The relay
// interrupts the maglock supply, so an energised relay means the door is
// released.
func stateFromRelay(on bool) DoorState {
	if on {
		return DoorUnlocked
	}
	return DoorLocked
}

// Identity is the immutable snapshot used to establish a relay session.
// Replacing it via Supervisor.Rebind tears down the current session and
// reconnects with the new values.
type Identity struct {
	DeviceID string
	Key      string
	Addr     string // host:port of the relay gateway
	Version  string // gateway protocol version, e.g. "3.3"
}

// Redacted returns a copy safe for logs and API responses.
func (id Identity) Redacted() Identity {
	id.Key = "[redacted]"
	return id
}

// Config holds the timing policy for the relay stack. Zero values are
// replaced with defaults by the constructors.
type Config struct {
	UnlockDuration    time.Duration // window before auto-lock fires
	CommandTimeout    time.Duration // ceiling for a single device command
	ConnectTimeout    time.Duration // ceiling for dial plus handshake
	RetryDelay        time.Duration // fixed delay between reconnect attempts
	SettleDelay       time.Duration // pause after an identity rebind
	ReadTimeout       time.Duration // session read deadline
	WriteTimeout      time.Duration // session write deadline
	HeartbeatInterval time.Duration // ping cadence on an idle session
}

const (
	defaultUnlockDuration    = 3 * time.Second
	defaultCommandTimeout    = 10 * time.Second
	defaultConnectTimeout    = 10 * time.Second
	defaultRetryDelay        = 5 * time.Second
	defaultSettleDelay       = 1 * time.Second
	defaultReadTimeout       = 30 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultHeartbeatInterval = 10 * time.Second
)

// withDefaults returns a copy of cfg with zero fields filled in.
func (c Config) withDefaults() Config {
	if c.UnlockDuration <= 0 {
		c.UnlockDuration = defaultUnlockDuration
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = defaultCommandTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	return c
}

// Status is the result of a door state query.
type Status struct {
	Online bool      `json:"online"`
	State  DoorState `json:"state"`
}

// UnlockResult describes a successful unlock.
type UnlockResult struct {
	State     DoorState
	Duration  time.Duration
	ExpiresAt time.Time
}

// Origin identifies who requested a command, for event and audit trails.
type Origin struct {
	Source string // one of the Source* constants
	Actor  string // token subject or client id, empty when unknown
}

// Known command origins.
const (
	SourceAPI    = "api"
	SourceMQTT   = "mqtt"
	SourceAuto   = "auto"
	SourceDevice = "device"
	SourceSystem = "system"
)

// Logger is the minimal logging interface the relay package depends on.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
