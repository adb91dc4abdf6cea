package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nerrad567/equipment-status/internal/infrastructure/config"
)

// ErrNotConnected is returned when the connection is closed or reconnecting.
var ErrNotConnected = errors.New("nats: not connected")

// Logger defines the logging interface used by the Bus.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RequestHandler answers one request. The returned value is JSON-encoded
// and sent as the reply; nil sends no reply.
type RequestHandler func(msg *nats.Msg) (resp any)

// Bus wraps a NATS connection with request-reply handler registration.
//
// Thread Safety: all methods are safe for concurrent use.
type Bus struct {
	conn   *nats.Conn
	logger Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect establishes a NATS connection. Reconnection is handled by the
// client library; disconnects and reconnects are logged.
//
// Parameters:
//   - cfg: NATS configuration
//   - logger: Logger for connection events (nil disables logging)
//
// Returns:
//   - *Bus: Connected bus
//   - error: If the server cannot be reached
func Connect(cfg config.NATSConfig, logger Logger) (*Bus, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	return &Bus{conn: conn, logger: logger}, nil
}

// Handle subscribes handler to subject. With a non-empty queue group,
// requests are load-balanced across service instances.
func (b *Bus) Handle(subject, queue string, handler RequestHandler) error {
	if !b.IsConnected() {
		return ErrNotConnected
	}

	sub, err := b.conn.QueueSubscribe(subject, queue, b.wrapHandler(subject, handler))
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

func (b *Bus) wrapHandler(subject string, handler RequestHandler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("nats handler panic", "subject", subject, "panic", r)
			}
		}()

		resp := handler(msg)
		if resp == nil || msg.Reply == "" {
			return
		}

		data, err := json.Marshal(resp)
		if err != nil {
			b.logger.Error("encoding nats reply failed", "subject", subject, "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			b.logger.Warn("sending nats reply failed", "subject", subject, "error", err)
		}
	}
}

// IsConnected reports whether the connection is currently up.
func (b *Bus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// HealthCheck verifies the server responds to a flush round-trip.
func (b *Bus) HealthCheck(ctx context.Context) error {
	if !b.IsConnected() {
		return ErrNotConnected
	}
	if err := b.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats health check failed: %w", err)
	}
	return nil
}

// Close drains subscriptions and closes the connection.
func (b *Bus) Close() error {
	if b.conn == nil || b.conn.IsClosed() {
		return nil
	}

	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()

	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}
