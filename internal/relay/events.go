package relay

import (
	"time"

	"github.com/google/uuid"
)

// EventType categorises door and availability events.
type EventType string

const (
	EventUnlocked       EventType = "unlocked"
	EventLocked         EventType = "locked"
	EventAutoLocked     EventType = "auto_locked"
	EventAutoLockFailed EventType = "auto_lock_failed"
	EventCommandFailed  EventType = "command_failed"
	EventDeviceState    EventType = "device_state"
	EventOnline         EventType = "online"
	EventOffline        EventType = "offline"
	EventRebound        EventType = "rebound"
)

// Event is a single door or availability occurrence. Events flow from the
// controller and supervisor to whatever sinks main wires up (audit log,
// MQTT, WebSocket, InfluxDB).
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Source     string    `json:"source"`
	Actor      string    `json:"actor,omitempty"`
	State      DoorState `json:"state,omitempty"`
	Online     bool      `json:"online"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	LatencyMS  int64     `json:"latency_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// newEvent builds an event skeleton with a fresh id and timestamp.
func newEvent(t EventType) Event {
	return Event{
		ID:   "evt-" + uuid.NewString()[:8],
		Type: t,
		At:   time.Now().UTC(),
	}
}

// EventSink receives relay events. Publish must not block for long; slow
// consumers should buffer internally.
type EventSink interface {
	Publish(event Event)
}

// SinkFunc adapts a plain function to the EventSink interface.
type SinkFunc func(Event)

// Publish implements EventSink.
func (f SinkFunc) Publish(event Event) { f(event) }

// MultiSink fans each event out to every sink in order.
type MultiSink []EventSink

// Publish implements EventSink.
func (m MultiSink) Publish(event Event) {
	for _, s := range m {
		s.Publish(event)
	}
}

// noopSink discards all events. Used when no sink is configured.
type noopSink struct{}

func (noopSink) Publish(Event) {}
