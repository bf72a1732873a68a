// Package influxdb records door metrics in InfluxDB v2.
//
// It wraps the official influxdb-client-go library behind a small surface
// tuned for telemetry from a single relay: event counts, command
// latencies, and link availability transitions. Metrics are strictly
// optional; when the backend is disabled or down the service runs
// without them.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    client = nil // run without metrics
//	}
//	defer client.Close()
//
//	client.WriteDoorEvent("unlocked", "api", 17)
//	client.WriteCommandLatency("unlock", 23)
//	client.WriteLinkAvailability(true)
//
// # Write Semantics
//
// Writes never block and never return errors. Points are batched per
// config.yaml (batch_size, flush_interval) and flushed asynchronously;
// failures arrive on the SetOnError callback, where the service logs
// them and moves on. A lost metric point must never delay or fail a
// door command.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package influxdb
