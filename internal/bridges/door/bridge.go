package door

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/latch-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/latch-core/internal/relay"
)

// Bridge operation constants.
const (
	// commandTimeout is the ceiling for executing an inbound door command.
	// It sits above the relay command timeout so the relay layer times out
	// first and reports the precise failure.
	commandTimeout = 15 * time.Second

	// eventBuffer is the size of the internal event queue. Events beyond
	// this are dropped rather than blocking the controller.
	eventBuffer = 64

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2
)

// Bridge mirrors door state and events onto MQTT and accepts unlock/lock
// commands from it. It handles:
//   - Forwarding relay events to the event topic
//   - Maintaining retained door state and availability topics
//   - Translating inbound command messages to controller calls
//
// Command outcomes are not acknowledged on a separate topic; failures
// surface as command_failed events on the event topic.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	controller DoorController
	mqtt       MQTTClient
	topics     mqtt.Topics
	qos        byte

	// events buffers relay events for asynchronous forwarding.
	events chan relay.Event

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// DoorController executes door commands. Satisfied by *relay.Controller.
type DoorController interface {
	// Unlock releases the door for the configured window.
	Unlock(ctx context.Context, origin relay.Origin) (relay.UnlockResult, error)

	// Lock engages the door immediately.
	Lock(ctx context.Context, origin relay.Origin) error
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// commandMessage is the payload accepted on the command topic.
type commandMessage struct {
	// Action is "unlock" or "lock".
	Action string `json:"action"`

	// Actor optionally identifies who issued the command (panel id,
	// automation rule). Recorded in the event trail.
	Actor string `json:"actor,omitempty"`
}

// stateMessage is published retained on the door state topic. The
// expiry field is only present while an unlock window is open, so a
// late subscriber can tell how long the door stays released.
type stateMessage struct {
	State           relay.DoorState `json:"state"`
	Online          bool            `json:"online"`
	UnlockExpiresAt *time.Time      `json:"unlock_expires_at,omitempty"`
	At              time.Time       `json:"at"`
}

// availabilityMessage is published retained on the availability topic.
type availabilityMessage struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Controller executes inbound door commands.
	Controller DoorController

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Topics builds the bridge's topic names.
	// The zero value falls back to the default prefix.
	Topics mqtt.Topics

	// QoS is the quality of service for publishes and subscriptions.
	QoS byte

	// Logger is optional structured logger.
	Logger Logger
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.QoS > maxQoS {
		return nil, fmt.Errorf("invalid QoS level: %d", opts.QoS)
	}

	topics := opts.Topics
	if topics == (mqtt.Topics{}) {
		topics = mqtt.NewTopics("")
	}

	// Create bridge-level context for command cancellation on shutdown
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		controller: opts.Controller,
		mqtt:       opts.MQTTClient,
		topics:     topics,
		qos:        opts.QoS,
		events:     make(chan relay.Event, eventBuffer),
		done:       make(chan struct{}),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}

	return b, nil
}

// Start begins bridge operation.
// This subscribes to the command topic, seeds the retained state and
// availability topics, and starts the event forwarding worker.
func (b *Bridge) Start(_ context.Context) error {
	commandTopic := b.topics.DoorCommand()
	if err := b.mqtt.Subscribe(commandTopic, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	// Seed retained topics so subscribers see a defined value before
	// the first relay event arrives.
	now := time.Now().UTC()
	b.publishState(relay.DoorUnknown, false, nil, now)
	b.publishAvailability(false, now)

	b.wg.Add(1)
	go b.pump()

	b.logInfo("door bridge started")

	return nil
}

// Stop gracefully shuts down the bridge.
// Buffered events not yet forwarded are discarded.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		// Cancel bridge context to abort in-flight commands
		b.ctxCancel()

		// Wait for the event worker
		b.wg.Wait()

		b.logInfo("door bridge stopped")
	})
}

// Publish implements relay.EventSink. Events are queued and forwarded to
// MQTT asynchronously; when the queue is full the event is dropped so the
// controller never blocks on a slow broker.
func (b *Bridge) Publish(event relay.Event) {
	select {
	case b.events <- event:
	default:
		b.logWarn("event queue full, dropping event",
			"event_id", event.ID,
			"type", string(event.Type))
	}
}

// pump forwards queued events until Stop.
func (b *Bridge) pump() {
	defer b.wg.Done()

	for {
		select {
		case ev := <-b.events:
			b.forward(ev)
		case <-b.done:
			return
		}
	}
}

// forward publishes a single relay event to the MQTT topics it affects.
func (b *Bridge) forward(ev relay.Event) {
	switch ev.Type {
	case relay.EventOnline:
		b.publishAvailability(true, ev.At)
	case relay.EventOffline:
		b.publishAvailability(false, ev.At)
	}

	// Events that carry a door state refresh the retained state topic.
	if ev.State != "" {
		var expires *time.Time
		if ev.Type == relay.EventUnlocked && ev.DurationMS > 0 {
			t := ev.At.Add(time.Duration(ev.DurationMS) * time.Millisecond)
			expires = &t
		}
		b.publishState(ev.State, ev.Online, expires, ev.At)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		b.logError("failed to encode event", err)
		return
	}

	if err := b.mqtt.Publish(b.topics.DoorEvent(), payload, b.qos, false); err != nil {
		b.logError("failed to publish event", err)
		return
	}

	b.logDebug("event forwarded", "event_id", ev.ID, "type", string(ev.Type))
}

// publishState updates the retained door state topic.
func (b *Bridge) publishState(state relay.DoorState, online bool, expires *time.Time, at time.Time) {
	payload, err := json.Marshal(stateMessage{
		State:           state,
		Online:          online,
		UnlockExpiresAt: expires,
		At:              at,
	})
	if err != nil {
		b.logError("failed to encode state", err)
		return
	}

	if err := b.mqtt.Publish(b.topics.DoorState(), payload, b.qos, true); err != nil {
		b.logError("failed to publish state", err)
	}
}

// publishAvailability updates the retained availability topic.
func (b *Bridge) publishAvailability(online bool, at time.Time) {
	payload, err := json.Marshal(availabilityMessage{Online: online, At: at})
	if err != nil {
		b.logError("failed to encode availability", err)
		return
	}

	if err := b.mqtt.Publish(b.topics.DoorAvailability(), payload, b.qos, true); err != nil {
		b.logError("failed to publish availability", err)
	}
}

// handleCommand processes an inbound command message.
func (b *Bridge) handleCommand(_ string, payload []byte) {
	var cmd commandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return
	}

	b.logInfo("received command", "action", cmd.Action, "actor", cmd.Actor)

	// Derive timeout from bridge context so commands are cancelled on shutdown
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	origin := relay.Origin{Source: relay.SourceMQTT, Actor: cmd.Actor}

	switch cmd.Action {
	case "unlock":
		if _, err := b.controller.Unlock(ctx, origin); err != nil {
			b.logError("unlock failed", err)
		}
	case "lock":
		if err := b.controller.Lock(ctx, origin); err != nil {
			b.logError("lock failed", err)
		}
	default:
		b.logError("unknown action", fmt.Errorf("action: %s", cmd.Action))
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning message if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
