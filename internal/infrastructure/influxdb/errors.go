package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when metrics are switched off
	// in config. Callers check this with errors.Is to distinguish
	// "not wanted" from "wanted but unreachable".
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps the underlying cause when the initial
	// ping fails.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")
)
