// Package engine defines the error taxonomy shared by the selection engine
// components. Failures cross the engine boundary as values of these types so
// callers can map them to toasts, empty states or guard violations.
package engine

import (
	"errors"
	"fmt"
)

// ErrNoValidOccurrence signals that no week in the loaded set is orderable.
// Terminal empty state, not a toast.
var ErrNoValidOccurrence = errors.New("no valid occurrence available")

// NetworkError wraps a transport or data-layer failure. Surfaced as a
// transient toast; prior state is left intact and nothing retries
// automatically.
type NetworkError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure during %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying transport error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError wraps err as a network failure for op.
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

// ValidationError reports an edit attempted against a closed week or a
// non-editable cart. Guards at the UI layer should prevent these from
// reaching the engine; when one does, it is rejected without mutating state.
type ValidationError struct {
	Reason string
}

// Error implements error.
func (e *ValidationError) Error() string {
	return e.Reason
}

// NewValidationError creates a ValidationError with the given reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
