package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/equipment-status/internal/equipment"
	"github.com/nerrad567/equipment-status/internal/infrastructure/config"
)

// Point schema for mirrored states.
const (
	MeasurementEquipmentState = "equipment_state"
	TagEquipmentID            = "equipment_id"
	TagState                  = "state"
	fieldValue                = "value"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Logger is the logging surface the mirror needs.
// *logging.Logger satisfies it.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Mirror copies accepted equipment states into an InfluxDB v2 bucket.
// It implements equipment.Mirror.
//
// Writes are batched and never block the report path. A failed batch is
// logged and surfaces once through HealthCheck.
type Mirror struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string

	mu       sync.Mutex
	logger   Logger
	lastErr  error
	closed   atomic.Bool
	recorded atomic.Uint64
	failed   atomic.Uint64
}

var _ equipment.Mirror = (*Mirror)(nil)

// Connect pings the server and returns a mirror writing to cfg.Bucket.
//
// Parameters:
//   - ctx: Bounds the initial ping
//   - cfg: InfluxDB section of the service config
//
// Returns:
//   - *Mirror: Ready mirror
//   - error: ErrDisabled when cfg.Enabled is false, ErrConnectionFailed
//     when the server cannot be reached
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Mirror, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- both values are positive here
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*uint(time.Second/time.Millisecond)),
	)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	m := &Mirror{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
		logger:   noopLogger{},
	}
	go m.drainErrors(m.writeAPI.Errors())
	return m, nil
}

// SetLogger sets the logger for write failures.
func (m *Mirror) SetLogger(logger Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// RecordState queues one point for state, stamped with the report time.
// It does nothing after Close.
func (m *Mirror) RecordState(state equipment.EquipmentState) {
	if m.writeAPI == nil || m.closed.Load() {
		return
	}
	m.writeAPI.WritePoint(statePoint(state))
	m.recorded.Add(1)
}

// Stats returns how many points were queued and how many batch writes failed.
func (m *Mirror) Stats() (recorded, failed uint64) {
	return m.recorded.Load(), m.failed.Load()
}

// HealthCheck pings the server. A batch failure since the previous check is
// reported once as ErrWriteFailed.
func (m *Mirror) HealthCheck(ctx context.Context) error {
	if m.client == nil || m.closed.Load() {
		return ErrClosed
	}

	m.mu.Lock()
	lastErr := m.lastErr
	m.lastErr = nil
	m.mu.Unlock()
	if lastErr != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, lastErr)
	}

	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(checkCtx, m.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Close flushes queued points and releases the client. Calling it again is a no-op.
func (m *Mirror) Close() error {
	if m.client == nil || !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.writeAPI.Flush()
	m.client.Close()
	return nil
}

func (m *Mirror) drainErrors(errs <-chan error) {
	for err := range errs {
		m.mu.Lock()
		m.lastErr = err
		logger := m.logger
		m.mu.Unlock()
		m.failed.Add(1)

		logger.Warn("influxdb batch write failed", "bucket", m.bucket, "error", err)
	}
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

// statePoint maps a state to equipment_state,equipment_id=..,state=.. value=1i.
// The constant field lets Flux count occurrences per state.
func statePoint(state equipment.EquipmentState) *write.Point {
	return write.NewPoint(
		MeasurementEquipmentState,
		map[string]string{
			TagEquipmentID: state.Identifier,
			TagState:       state.State.String(),
		},
		map[string]any{fieldValue: int64(1)},
		state.Timestamp,
	)
}
