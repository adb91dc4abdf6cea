package equipment

import (
	"fmt"
	"strings"
	"time"
)

// Accepted timestamp layouts. Parsing never consults the process locale.
var (
	// offsetLayouts carry an explicit UTC offset (or Z).
	offsetLayouts = []string{
		time.RFC3339, // fractional seconds are accepted when present
		"2006-01-02T15:04:05Z0700",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02T15:04Z07:00",
	}

	// localLayouts have no offset and are read in the validator's location.
	localLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02",
	}
)

// ParseTimestamp parses a point in time from raw using the accepted layouts.
// Offset-less input is interpreted in loc (UTC when loc is nil). The
// returned time keeps the offset it was written with.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, layout := range offsetLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	for _, layout := range localLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

// Validator turns raw state reports into EquipmentState values.
//
// Thread Safety: a Validator is immutable after construction and safe for
// concurrent use.
type Validator struct {
	states   StateSet
	location *time.Location
	now      func() time.Time
}

// NewValidator creates a validator for the given state enumeration.
//
// Parameters:
//   - states: The closed set of operational states accepted
//   - location: Zone used for timestamps written without an offset (nil = UTC)
//
// Returns:
//   - *Validator: Ready-to-use validator
func NewValidator(states StateSet, location *time.Location) *Validator {
	if location == nil {
		location = time.UTC
	}
	return &Validator{
		states:   states,
		location: location,
		now:      time.Now,
	}
}

// States returns the enumeration this validator accepts.
func (v *Validator) States() StateSet {
	return v.states
}

// Location returns the zone used for offset-less timestamps.
func (v *Validator) Location() *time.Location {
	return v.location
}

// Validate checks a raw report and returns the normalised state.
//
// All rules must pass:
//  1. identifier is not blank
//  2. timestamp parses under one of the accepted layouts
//  3. the timestamp is strictly before now
//  4. stateName matches a known state, ignoring case
//
// On success the identifier is trimmed and upper-cased and the state is the
// canonical member. The boolean is false on any failure; which rule failed is
// reported only through Explain.
func (v *Validator) Validate(identifier, stateName, timestamp string) (EquipmentState, bool) {
	state, reason := v.validate(identifier, stateName, timestamp)
	return state, reason == ""
}

// Explain returns the first rule a report breaks, or "" if it is valid.
// It exists for diagnostics (debug logging); callers deciding acceptance
// use Validate.
func (v *Validator) Explain(identifier, stateName, timestamp string) string {
	_, reason := v.validate(identifier, stateName, timestamp)
	return reason
}

func (v *Validator) validate(identifier, stateName, timestamp string) (EquipmentState, string) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return EquipmentState{}, "identifier is blank"
	}

	parsed, err := ParseTimestamp(timestamp, v.location)
	if err != nil {
		return EquipmentState{}, "timestamp does not parse"
	}
	if !parsed.Before(v.now()) {
		return EquipmentState{}, "timestamp is not in the past"
	}

	state, ok := v.states.Lookup(stateName)
	if !ok {
		return EquipmentState{}, "unknown state"
	}

	return EquipmentState{
		Identifier: strings.ToUpper(trimmed),
		State:      state,
		Timestamp:  parsed,
	}, ""
}
