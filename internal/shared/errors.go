package shared

import (
	"errors"
	"fmt"
)

// ValidationError indicates client-fixable input: an unknown filter key, a
// value that does not match the field's declared type, a bad sort direction.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a named field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// AuthorizationError indicates a known entity/action denied by permission
// rules. Rendered as a 403-class message, distinct from validation failures.
type AuthorizationError struct {
	Entity string
	Action string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization: %s on %s denied", e.Action, e.Entity)
}

// ConfigurationError indicates a setup gap: missing entity type, missing
// active template, unknown role. Operator-fixable; logged at error level.
type ConfigurationError struct {
	Kind string
	Name string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %q not provisioned", e.Kind, e.Name)
}

// NotFoundError indicates a record that is absent or soft-deleted.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// BackendError wraps a storage-layer failure. The driver text stays
// server-side; callers surface only a generic message.
type BackendError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend: %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
