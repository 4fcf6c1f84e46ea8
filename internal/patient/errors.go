package patient

import (
	"errors"
	"fmt"
)

// Stores wrap these (with %w) so callers can branch with errors.Is.
var (
	ErrNotFound           = errors.New("patient not found")
	ErrDuplicateMedicalID = errors.New("patient already added")
	ErrVersionConflict    = errors.New("patient was modified concurrently")
	ErrInvalid            = errors.New("invalid patient data")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is reports ErrInvalid so handlers need a single check.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
