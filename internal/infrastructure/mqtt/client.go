package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/equipment-status/internal/infrastructure/config"
)

// MessageHandler processes one message. topic is the concrete topic, with
// wildcards resolved. A returned error is logged and counted; the message
// is acknowledged either way.
type MessageHandler func(topic string, payload []byte) error

// Logger is the logging surface the client needs. *logging.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client is the broker session used for report ingest.
//
// Sessions are clean, so the client keeps its own list of filters and
// subscribes them again from the connect handler. The same handler
// publishes the retained online status; the broker publishes the will if
// the process disappears.
type Client struct {
	paho     pahomqtt.Client
	clientID string
	qos      byte

	mu      sync.Mutex
	filters map[string]route
	logger  Logger

	online   atomic.Bool
	received atomic.Uint64
	failed   atomic.Uint64
}

type route struct {
	qos     byte
	handler MessageHandler
}

// newClient builds an unconnected client for cfg.
func newClient(cfg config.MQTTConfig) *Client {
	c := &Client{
		clientID: cfg.Broker.ClientID,
		qos:      byte(cfg.QoS), // #nosec G115 -- validated to 0..2
		filters:  make(map[string]route),
		logger:   noopLogger{},
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) })

	c.paho = pahomqtt.NewClient(opts)
	return c
}

// Connect opens a session with the broker described by cfg and waits for
// the first CONNACK.
//
// Returns:
//   - *Client: Connected client
//   - error: ErrConnectionFailed wrapping the broker or timeout error
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	token := c.paho.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: no CONNACK within %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// onConnect may still be running; the session is usable now.
	c.online.Store(true)
	return c, nil
}

// SetLogger replaces the no-op logger.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

func (c *Client) onConnect() {
	c.online.Store(true)

	c.mu.Lock()
	for f, r := range c.filters {
		c.paho.Subscribe(f, r.qos, c.dispatch(r.handler))
	}
	n := len(c.filters)
	c.mu.Unlock()

	c.paho.Publish(Topics{}.SystemStatus(), c.qos, true, buildOnlinePayload(c.clientID))
	c.log().Info("mqtt connected", "client_id", c.clientID, "filters", n)
}

func (c *Client) onConnectionLost(err error) {
	c.online.Store(false)
	c.log().Warn("mqtt connection lost, reconnecting", "client_id", c.clientID, "error", err)
}

// Subscribe routes messages matching filter to handler. The filter is
// kept and subscribed again after every reconnect.
//
// Parameters:
//   - filter: Topic filter; see ValidateFilter
//   - qos: Maximum delivery QoS, 0 to 2
//   - handler: Called once per message, concurrently
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or ErrSubscribeFailed
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %q", ErrSubscribeFailed, filter)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.filters[filter] = route{qos: qos, handler: handler}
	c.mu.Unlock()

	var err error
	token := c.paho.Subscribe(filter, qos, c.dispatch(handler))
	if token.WaitTimeout(defaultPublishTimeout) {
		err = token.Error()
	} else {
		err = fmt.Errorf("no SUBACK within %v", defaultPublishTimeout)
	}
	if err != nil {
		c.mu.Lock()
		delete(c.filters, filter)
		c.mu.Unlock()
		return fmt.Errorf("%w: %q: %w", ErrSubscribeFailed, filter, err)
	}
	return nil
}

// dispatch adapts handler to paho. Handler errors and panics are logged
// and counted; neither reaches paho's goroutine.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.received.Add(1)
		defer func() {
			if r := recover(); r != nil {
				c.failed.Add(1)
				c.log().Error("mqtt handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.failed.Add(1)
			c.log().Warn("mqtt message not processed", "topic", msg.Topic(), "error", err)
		}
	}
}

// Stats returns the number of messages delivered to handlers and how many
// of them failed.
func (c *Client) Stats() (received, failed uint64) {
	return c.received.Load(), c.failed.Load()
}

// IsConnected reports whether the session is up.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.online.Load() && c.paho.IsConnectionOpen()
}

// HealthCheck returns ErrNotConnected while the client is reconnecting.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close replaces the retained status with a graceful offline document and
// disconnects. It is safe on a client that never connected.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.paho.Publish(Topics{}.SystemStatus(), c.qos, true, buildOfflinePayload(c.clientID)).
			WaitTimeout(defaultPublishTimeout)
	}
	c.online.Store(false)
	c.paho.Disconnect(defaultDisconnectQuiesce)
	return nil
}
