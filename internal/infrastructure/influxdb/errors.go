package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when the mirror is switched off.
	ErrDisabled = errors.New("influxdb: mirror disabled")

	// ErrConnectionFailed wraps the initial ping failure.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrClosed is reported by HealthCheck after Close.
	ErrClosed = errors.New("influxdb: mirror closed")

	// ErrWriteFailed is reported by HealthCheck after an asynchronous batch failure.
	ErrWriteFailed = errors.New("influxdb: batch write failed")
)
