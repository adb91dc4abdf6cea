package equipment

import "errors"

// Domain errors for the equipment package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, equipment.ErrRejected) {
//	    // report failed validation
//	}
var (
	// ErrRejected is returned when a state report fails validation.
	// Which rule failed is deliberately not part of the error.
	ErrRejected = errors.New("equipment: report rejected")

	// ErrInvalidStateSet is returned when the configured state list is unusable.
	ErrInvalidStateSet = errors.New("equipment: invalid state set")

	// ErrStoreClosed is returned when a store is used after Close.
	ErrStoreClosed = errors.New("equipment: store closed")
)
