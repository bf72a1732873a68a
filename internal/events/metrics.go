package events

import (
	"github.com/nerrad567/latch-core/internal/relay"
)

// MetricsWriter is the subset of the InfluxDB client the metrics sink
// needs. Declared here so the sink can be tested without a server.
type MetricsWriter interface {
	WriteDoorEvent(eventType string, source string, latencyMS int64)
	WriteCommandLatency(command string, latencyMS int64)
	WriteLinkAvailability(online bool)
}

// MetricsSink forwards relay events to a time-series store. Writes are
// non-blocking on the underlying client, so Publish is cheap.
type MetricsSink struct {
	w MetricsWriter
}

// NewMetricsSink creates a sink writing to w.
func NewMetricsSink(w MetricsWriter) *MetricsSink {
	return &MetricsSink{w: w}
}

// Publish implements relay.EventSink.
func (s *MetricsSink) Publish(e relay.Event) {
	s.w.WriteDoorEvent(string(e.Type), e.Source, e.LatencyMS)

	switch e.Type {
	case relay.EventUnlocked:
		s.w.WriteCommandLatency("unlock", e.LatencyMS)
	case relay.EventLocked:
		s.w.WriteCommandLatency("lock", e.LatencyMS)
	case relay.EventAutoLocked:
		s.w.WriteCommandLatency("auto_lock", e.LatencyMS)
	case relay.EventOnline:
		s.w.WriteLinkAvailability(true)
	case relay.EventOffline:
		s.w.WriteLinkAvailability(false)
	}
}
