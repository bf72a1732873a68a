package events

import (
	"context"
	"time"

	"github.com/nerrad567/latch-core/internal/infrastructure/logging"
	"github.com/nerrad567/latch-core/internal/relay"
)

// writeTimeout caps a single event insert so a stalled database cannot
// hold up the command path.
const writeTimeout = 5 * time.Second

// Recorder persists relay events to the door event repository.
// It implements relay.EventSink.
//
// Writes are synchronous so the audit trail preserves event order.
// A failed write is logged and dropped; recording must never block or
// fail a door command.
type Recorder struct {
	repo   Repository
	logger *logging.Logger
}

// NewRecorder creates a Recorder writing to the given repository.
func NewRecorder(repo Repository, logger *logging.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger,
	}
}

// Publish stores one relay event.
func (r *Recorder) Publish(e relay.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	event := FromRelay(e)
	if err := r.repo.Create(ctx, &event); err != nil {
		r.logger.Error("failed to record door event",
			"event_id", e.ID,
			"event_type", string(e.Type),
			"error", err,
		)
	}
}

// FromRelay converts a relay event into its storage representation.
func FromRelay(e relay.Event) DoorEvent {
	return DoorEvent{
		ID:         e.ID,
		Type:       string(e.Type),
		Source:     e.Source,
		Actor:      e.Actor,
		State:      string(e.State),
		Online:     e.Online,
		DurationMS: e.DurationMS,
		LatencyMS:  e.LatencyMS,
		Error:      e.Error,
		CreatedAt:  e.At,
	}
}
