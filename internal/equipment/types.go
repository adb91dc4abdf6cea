package equipment

import (
	"fmt"
	"strings"
	"time"
)

// State is an operational state name, one member of a StateSet.
type State string

// Default operational states.
const (
	StateRunning       State = "Running"
	StateStopped       State = "Stopped"
	StateTransitioning State = "Transitioning"
)

// DefaultStates returns the operational states used when configuration
// does not provide its own list.
func DefaultStates() []State {
	return []State{StateRunning, StateStopped, StateTransitioning}
}

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// StateSet is the closed enumeration of operational states known to a
// deployment. Lookups are case-insensitive; the canonical casing is the one
// the member was registered with.
type StateSet struct {
	members []State
	byFold  map[string]State
}

// NewStateSet builds a StateSet from the given names.
//
// Names are trimmed. Empty names and names that collide case-insensitively
// with an earlier member are rejected.
//
// Returns:
//   - StateSet: The enumeration, in registration order
//   - error: ErrInvalidStateSet if the list is empty or malformed
func NewStateSet(names ...string) (StateSet, error) {
	if len(names) == 0 {
		return StateSet{}, fmt.Errorf("%w: no states configured", ErrInvalidStateSet)
	}

	set := StateSet{
		members: make([]State, 0, len(names)),
		byFold:  make(map[string]State, len(names)),
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return StateSet{}, fmt.Errorf("%w: empty state name", ErrInvalidStateSet)
		}
		key := strings.ToLower(name)
		if _, exists := set.byFold[key]; exists {
			return StateSet{}, fmt.Errorf("%w: duplicate state %q", ErrInvalidStateSet, name)
		}
		set.byFold[key] = State(name)
		set.members = append(set.members, State(name))
	}

	return set, nil
}

// MustStateSet is like NewStateSet but panics on error. Intended for
// package-level defaults and tests.
func MustStateSet(names ...string) StateSet {
	set, err := NewStateSet(names...)
	if err != nil {
		panic(err)
	}
	return set
}

// DefaultStateSet returns the StateSet built from DefaultStates.
func DefaultStateSet() StateSet {
	defaults := DefaultStates()
	names := make([]string, len(defaults))
	for i, s := range defaults {
		names[i] = s.String()
	}
	return MustStateSet(names...)
}

// Lookup returns the canonical member matching name case-insensitively.
func (s StateSet) Lookup(name string) (State, bool) {
	state, ok := s.byFold[strings.ToLower(strings.TrimSpace(name))]
	return state, ok
}

// Members returns a copy of the states in registration order.
func (s StateSet) Members() []State {
	out := make([]State, len(s.members))
	copy(out, s.members)
	return out
}

// EquipmentState is one observed operational state of a piece of equipment.
//
// Values produced by Validator satisfy: non-blank upper-case Identifier,
// State from the configured StateSet, Timestamp strictly in the past at
// validation time. Values read back from a Store are trusted as-is.
type EquipmentState struct {
	// Identifier names the equipment. Identity is case-insensitive.
	Identifier string

	// State is the operational state reported.
	State State

	// Timestamp is when the state was observed, with its original offset.
	Timestamp time.Time
}

// normalizedKey is the case-insensitive identity stores group and filter by.
func normalizedKey(identifier string) string {
	return strings.ToUpper(strings.TrimSpace(identifier))
}
