package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"

	"github.com/nerrad567/equipment-status/internal/equipment"
	"github.com/nerrad567/equipment-status/internal/infrastructure/mqtt"
)

// reportTimeout bounds the store write for one bus message.
const reportTimeout = 5 * time.Second

// ErrMalformed is returned when a payload is not a well-formed report.
var ErrMalformed = errors.New("ingest: malformed report")

// Report is the wire shape of a state report on either bus.
type Report struct {
	ID        string `json:"id" validate:"required"`
	State     string `json:"state" validate:"required"`
	Timestamp string `json:"timestamp" validate:"required"`
}

// Reply is the NATS response to a report request.
type Reply struct {
	Accepted bool `json:"accepted"`
}

// Reporter records validated reports. *equipment.Service satisfies it.
type Reporter interface {
	Report(ctx context.Context, identifier, stateName, timestamp string) (equipment.EquipmentState, error)
}

// Logger defines the logging interface used by Handler.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Handler turns bus messages into calls on a Reporter.
//
// Thread Safety: safe for concurrent use; paho and nats.go both invoke
// handlers from their own goroutines.
type Handler struct {
	reporter Reporter
	validate *validator.Validate
	logger   Logger
}

// NewHandler creates a Handler feeding reporter.
func NewHandler(reporter Reporter) *Handler {
	return &Handler{
		reporter: reporter,
		validate: validator.New(),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for rejected and failed reports.
func (h *Handler) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	h.logger = logger
}

// MQTTHandler returns a message handler for subscriptions on filter.
//
// When the payload carries no id, the segment of the topic matched by the
// first "+" in filter is used instead. Rejected reports are logged and
// dropped; the returned error is logged by the MQTT client.
//
// Parameters:
//   - filter: The subscription filter, e.g. "equipstatus/equipment/+/report"
//
// Returns:
//   - func: Handler compatible with mqtt.MessageHandler
func (h *Handler) MQTTHandler(filter string) func(topic string, payload []byte) error {
	return func(topic string, payload []byte) error {
		fallbackID, _ := mqtt.WildcardSegment(filter, topic)

		report, err := h.decode(payload, fallbackID)
		if err != nil {
			return fmt.Errorf("decoding report on %s: %w", topic, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()

		if err := h.submit(ctx, report, "mqtt"); err != nil {
			return fmt.Errorf("reporting %s: %w", report.ID, err)
		}
		return nil
	}
}

// HandleNATS answers a report request. It always replies with a Reply;
// Accepted is false for malformed, rejected and unstored reports alike.
func (h *Handler) HandleNATS(msg *nats.Msg) any {
	report, err := h.decode(msg.Data, "")
	if err != nil {
		h.logger.Warn("dropping malformed report", "transport", "nats", "subject", msg.Subject, "error", err)
		return Reply{Accepted: false}
	}

	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	return Reply{Accepted: h.submit(ctx, report, "nats") == nil}
}

// decode parses and shape-checks a payload. fallbackID fills a missing id.
func (h *Handler) decode(payload []byte, fallbackID string) (Report, error) {
	var report Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if strings.TrimSpace(report.ID) == "" {
		report.ID = fallbackID
	}
	if err := h.validate.Struct(report); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return report, nil
}

func (h *Handler) submit(ctx context.Context, report Report, transport string) error {
	state, err := h.reporter.Report(ctx, report.ID, report.State, report.Timestamp)
	switch {
	case errors.Is(err, equipment.ErrRejected):
		h.logger.Warn("equipment report rejected", "transport", transport, "id", report.ID, "state", report.State)
		return err
	case err != nil:
		h.logger.Error("equipment report failed", "transport", transport, "id", report.ID, "error", err)
		return err
	}

	h.logger.Debug("equipment report accepted", "transport", transport, "id", state.Identifier, "state", state.State.String())
	return nil
}
