package equipment

import (
	"context"
	"fmt"
	"time"
)

// Logger defines the logging interface used by the Service.
// This allows for dependency injection and testing.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Mirror receives every accepted state after it has been stored.
// A mirror must not block; failures are its own concern.
type Mirror interface {
	RecordState(state EquipmentState)
}

// Service is the entry point for reporting and querying equipment states.
// It validates reports, appends them to the Store, and forwards accepted
// states to an optional Mirror.
//
// Thread Safety: all methods are safe for concurrent use as long as the
// Store is. SetLogger and SetMirror must be called before use.
type Service struct {
	store     Store
	validator *Validator
	mirror    Mirror
	logger    Logger
}

// NewService creates a service over the given store and validator.
func NewService(store Store, validator *Validator) *Service {
	return &Service{
		store:     store,
		validator: validator,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetMirror attaches a mirror for accepted states. Pass nil to detach.
func (s *Service) SetMirror(mirror Mirror) {
	s.mirror = mirror
}

// States returns the state enumeration reports are validated against.
func (s *Service) States() StateSet {
	return s.validator.States()
}

// Report validates a raw state report and appends it to the history.
//
// Parameters:
//   - ctx: Context for the store write
//   - identifier: Equipment identifier as received
//   - stateName: State name as received, matched case-insensitively
//   - timestamp: Observation time as received
//
// Returns:
//   - EquipmentState: The normalised state that was stored
//   - error: ErrRejected if validation fails, or the wrapped store error
func (s *Service) Report(ctx context.Context, identifier, stateName, timestamp string) (EquipmentState, error) {
	state, ok := s.validator.Validate(identifier, stateName, timestamp)
	if !ok {
		s.logger.Debug("equipment report rejected",
			"id", identifier,
			"state", stateName,
			"timestamp", timestamp,
			"reason", s.validator.Explain(identifier, stateName, timestamp),
		)
		return EquipmentState{}, ErrRejected
	}

	if err := s.store.Insert(ctx, state); err != nil {
		s.logger.Error("storing equipment state failed", "id", state.Identifier, "error", err)
		return EquipmentState{}, fmt.Errorf("storing equipment state: %w", err)
	}

	s.logger.Debug("equipment state recorded",
		"id", state.Identifier,
		"state", state.State.String(),
		"timestamp", state.Timestamp,
	)

	if s.mirror != nil {
		s.mirror.RecordState(state)
	}
	return state, nil
}

// Latest returns the current state of every known piece of equipment.
func (s *Service) Latest(ctx context.Context) ([]EquipmentState, error) {
	return s.store.Latest(ctx)
}

// History returns all states observed in [from, to], newest first.
func (s *Service) History(ctx context.Context, from, to time.Time) ([]EquipmentState, error) {
	return s.store.History(ctx, from, to)
}

// HistoryByIdentifier returns the states of one piece of equipment in [from, to].
func (s *Service) HistoryByIdentifier(ctx context.Context, identifier string, from, to time.Time) ([]EquipmentState, error) {
	return s.store.HistoryByIdentifier(ctx, identifier, from, to)
}

// ParseTimestamp parses a query bound using the same layouts and default
// zone as reports.
func (s *Service) ParseTimestamp(raw string) (time.Time, error) {
	return ParseTimestamp(raw, s.validator.Location())
}

// HealthCheck verifies the store is reachable.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.store.HealthCheck(ctx)
}
