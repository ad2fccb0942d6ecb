package engine

import (
	"errors"
	"fmt"
)

// Phase names the execution step that issued a query.
type Phase string

const (
	PhaseKey     Phase = "key"
	PhaseContent Phase = "content"
	PhaseCount   Phase = "count"
	PhaseBatch   Phase = "batch"
)

// ExecutionError wraps a driver error with the phase that produced it.
//
// The driver error is kept as-is and is reachable through Unwrap, so
// callers can still match driver-specific error types.
type ExecutionError struct {
	Phase Phase
	Err   error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s query: %v", e.Phase, e.Err)
}

// Unwrap returns the driver error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsExecutionError returns true if err is or wraps an *ExecutionError.
// Uses errors.As to handle wrapped errors.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// ExecutionPhase returns the phase of a wrapped *ExecutionError, or "".
func ExecutionPhase(err error) Phase {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Phase
	}
	return ""
}

// Warning codes
const (
	// WarnMissingIdentity: the root type declares no identity, so default
	// ordering and identity deduplication are unavailable.
	WarnMissingIdentity = "W200"

	// WarnNullIdentity: a parent row has a null identity and its deferred
	// associations resolve empty.
	WarnNullIdentity = "W201"

	// WarnSuspiciousRequest: the request is well formed but contains a
	// construct that is likely a mistake, such as an empty OR or a
	// repeated criteria on one field.
	WarnSuspiciousRequest = "W202"
)

// Warning reports a data-shape problem. Warnings are returned with the
// result; they never fail a request.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s", w.Code, w.Message)
}

// FieldError records a nested association that failed to load. The field
// at Path is null in the result; the rest of the result is intact.
type FieldError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap returns the batch error.
func (e FieldError) Unwrap() error {
	return e.Err
}
