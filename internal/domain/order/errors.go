package order

import "fmt"

// ValidationError carries the human-readable reason for rejected input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func validationError(reason string) error {
	return &ValidationError{Reason: reason}
}

// NewValidation is used by callers that validate raw input before building lines.
func NewValidation(format string, args ...any) error {
	return validationError(fmt.Sprintf(format, args...))
}
