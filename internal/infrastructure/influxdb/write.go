package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDoorEvent records a single door event occurrence.
//
// This is the primary method for door telemetry. The write is non-blocking;
// data is batched and sent asynchronously.
//
// Parameters:
//   - eventType: The event type (e.g., "unlocked", "auto_locked", "command_failed")
//   - source: Where the event originated ("api", "mqtt", "auto", "system")
//   - latencyMS: Device round-trip latency in milliseconds (0 when not applicable)
//
// Example:
//
//	client.WriteDoorEvent("unlocked", "api", 17)
//	client.WriteDoorEvent("command_failed", "mqtt", 0)
func (c *Client) WriteDoorEvent(eventType string, source string, latencyMS int64) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"count": 1,
	}
	if latencyMS > 0 {
		fields["latency_ms"] = latencyMS
	}

	point := write.NewPoint(
		"door_events",
		map[string]string{
			"type":   eventType,
			"source": source,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCommandLatency records the round-trip latency of a completed command.
//
// Used for tracking relay responsiveness over time.
//
// Parameters:
//   - command: The command name ("unlock", "lock", "auto_lock")
//   - latencyMS: Device round-trip latency in milliseconds
func (c *Client) WriteCommandLatency(command string, latencyMS int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"command_latency",
		map[string]string{
			"command": command,
		},
		map[string]interface{}{
			"latency_ms": latencyMS,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteLinkAvailability records a relay link transition.
//
// Each transition writes a 0/1 gauge, from which uptime and flap counts
// can be derived.
//
// Parameters:
//   - online: true when the relay link came up, false when it dropped
func (c *Client) WriteLinkAvailability(online bool) {
	if !c.IsConnected() {
		return
	}

	value := 0
	if online {
		value = 1
	}

	point := write.NewPoint(
		"link_availability",
		nil,
		map[string]interface{}{
			"online": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "latch-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
