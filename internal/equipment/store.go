package equipment

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Store persists the append-only history of equipment states.
//
// Implementations must be safe for concurrent use; any serialisation of
// writers is left to the underlying storage engine.
type Store interface {
	// Insert appends a new history record. It never overwrites.
	//
	// Returns:
	//   - error: nil on success, otherwise the wrapped storage error
	Insert(ctx context.Context, state EquipmentState) error

	// Latest returns one record per distinct identifier: the one with the
	// greatest timestamp. Ties go to the record with the highest generated
	// key. Results are ordered by identifier.
	Latest(ctx context.Context) ([]EquipmentState, error)

	// History returns records with from <= timestamp <= to, newest first.
	// An empty, non-nil slice is returned when nothing matches.
	History(ctx context.Context, from, to time.Time) ([]EquipmentState, error)

	// HistoryByIdentifier is History restricted to one identifier, matched
	// case-insensitively. A blank identifier yields an empty slice without
	// touching storage.
	HistoryByIdentifier(ctx context.Context, identifier string, from, to time.Time) ([]EquipmentState, error)

	// HealthCheck verifies the backing storage is reachable.
	HealthCheck(ctx context.Context) error
}

// StoreOptions controls the one-time initialisation run by store constructors.
type StoreOptions struct {
	// Seed lists records inserted when the store holds no records at all.
	// Leave nil to disable seeding.
	Seed []EquipmentState
}

// Identifiers of the sample machines written by SampleStates.
const (
	SamplePlateMachine = "2_BY_4_PLATE_MACHINE"
	SampleHeadMachine  = "MINIFIGURE_HEAD_MACHINE"
)

// SampleStates returns the sample history for two machines, with timestamps
// relative to now. Entries whose state is not in states are omitted.
func SampleStates(now time.Time, states StateSet) []EquipmentState {
	now = now.UTC()
	sample := []EquipmentState{
		{Identifier: SamplePlateMachine, State: StateStopped, Timestamp: now.Add(-5 * time.Minute)},
		{Identifier: SamplePlateMachine, State: StateTransitioning, Timestamp: now.Add(-3 * time.Minute)},
		{Identifier: SamplePlateMachine, State: StateRunning, Timestamp: now.Add(-2 * time.Minute)},
		{Identifier: SampleHeadMachine, State: StateRunning, Timestamp: now.Add(-10 * time.Minute)},
		{Identifier: SampleHeadMachine, State: StateTransitioning, Timestamp: now.Add(-5 * time.Minute)},
		{Identifier: SampleHeadMachine, State: StateStopped, Timestamp: now.Add(-3 * time.Minute)},
	}

	out := make([]EquipmentState, 0, len(sample))
	for _, s := range sample {
		canonical, ok := states.Lookup(s.State.String())
		if !ok {
			continue
		}
		s.State = canonical
		out = append(out, s)
	}
	return out
}

// record is a stored EquipmentState plus its generated key.
// The key never leaves the store.
type record struct {
	Key   uuid.UUID
	State EquipmentState
}

// newRecordKey generates a time-ordered key. UUIDv7 values sort in creation
// order, which gives Latest its tie-break.
func newRecordKey() (uuid.UUID, error) {
	return uuid.NewV7()
}

// newerThan reports whether a sorts after b: later timestamp, then higher key.
func (a record) newerThan(b record) bool {
	if !a.State.Timestamp.Equal(b.State.Timestamp) {
		return a.State.Timestamp.After(b.State.Timestamp)
	}
	return a.Key.String() > b.Key.String()
}

// sortNewestFirst orders records by timestamp descending, keys breaking ties.
func sortNewestFirst(records []record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].newerThan(records[j])
	})
}

// statesOf strips keys from records.
func statesOf(records []record) []EquipmentState {
	out := make([]EquipmentState, len(records))
	for i, r := range records {
		out[i] = r.State
	}
	return out
}

// inRange reports whether ts lies in the closed interval [from, to].
func inRange(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}
