package mqtt

import "errors"

var (
	// ErrConnectionFailed wraps the broker error from Connect.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrNotConnected is returned while the client has no broker session.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrInvalidTopic is returned for a malformed topic filter.
	ErrInvalidTopic = errors.New("mqtt: invalid topic filter")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrSubscribeFailed wraps a subscription the broker did not acknowledge.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")
)
