// Package errs defines the error taxonomy shared across the service.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced pharmacy, prescription, drug or
	// patient does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate identity on create, an identity
	// mismatch between path and payload, or a stale concurrent write.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition indicates a status change outside the allowed
	// prescription status graph.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDrugNotStocked indicates a fill was requested but the pharmacy
	// stocks no drug matching the prescription's code.
	ErrDrugNotStocked = errors.New("drug not stocked")

	// ErrDelivery indicates a notification channel failure. It is absorbed
	// by the dispatcher and never surfaced to API callers.
	ErrDelivery = errors.New("notification delivery failed")
)

// ValidationError reports a rejected field value. The whole operation is
// rejected; nothing is partially applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError for a field.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Validationf builds a ValidationError with a formatted reason.
func Validationf(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
