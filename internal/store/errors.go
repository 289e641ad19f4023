package store

import (
	"errors"
	"fmt"
)

// Error kinds. Every specific error below wraps exactly one of them.
var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrTransient  = errors.New("transient store failure")
)

var (
	ErrAmenityNotFound  = fmt.Errorf("%w: amenity not found", ErrNotFound)
	ErrBookingNotFound  = fmt.Errorf("%w: booking not found", ErrNotFound)
	ErrPassNotFound     = fmt.Errorf("%w: pass not found", ErrNotFound)
	ErrSlotNotFound     = fmt.Errorf("%w: slot not defined for amenity", ErrValidation)
	ErrAmenityInactive  = fmt.Errorf("%w: amenity is not active", ErrValidation)
	ErrSlotFull         = fmt.Errorf("%w: slot full", ErrConflict)
	ErrDuplicateBooking = fmt.Errorf("%w: duplicate booking", ErrConflict)
	ErrAlreadyCancelled = fmt.Errorf("%w: already cancelled", ErrConflict)
	ErrNotPending       = fmt.Errorf("%w: booking is not pending", ErrConflict)
	ErrInvalidState     = fmt.Errorf("%w: invalid state", ErrConflict)
	ErrPassNotActive    = fmt.Errorf("%w: pass is not active", ErrConflict)
	ErrCodeTaken        = fmt.Errorf("%w: pass code already in use", ErrConflict)
	ErrAmenityExists    = fmt.Errorf("%w: amenity name already in use", ErrConflict)
)

// Validation builds a validation error carrying a caller-facing message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Transient marks err as a retryable store failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
