package bridge

import (
	"errors"
	"fmt"
)

// Kinds of bridge lifecycle failure, distinguished so callers of the
// setup sequence can branch on what went wrong.
var (
	// ErrInitialization marks a failed setup step.
	ErrInitialization = errors.New("bridge initialization failed")

	// ErrTimeout marks a setup step that exceeded its deadline.
	ErrTimeout = errors.New("bridge operation timed out")

	// ErrConnection marks a transport failure while establishing or
	// holding the bridge connection.
	ErrConnection = errors.New("bridge connection failed")

	// ErrAborted marks a setup sequence cancelled by its caller.
	ErrAborted = errors.New("bridge operation aborted")

	// ErrNotConnected is returned when an operation requires an
	// established bridge connection.
	ErrNotConnected = errors.New("bridge not connected")
)

// Error is a typed bridge lifecycle error carrying a stable code and an
// optional wrapped cause. The kind sentinel is reachable with errors.Is.
type Error struct {
	Kind    error
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// NewInitializationError wraps a failed setup step.
func NewInitializationError(code, message string, cause error) *Error {
	return &Error{Kind: ErrInitialization, Code: code, Message: message, Cause: cause}
}

// NewTimeoutError wraps an expired setup deadline.
func NewTimeoutError(code, message string) *Error {
	return &Error{Kind: ErrTimeout, Code: code, Message: message}
}

// NewConnectionError wraps a transport failure.
func NewConnectionError(code, message string, cause error) *Error {
	return &Error{Kind: ErrConnection, Code: code, Message: message, Cause: cause}
}

// NewAbortedError wraps a caller-initiated cancellation.
func NewAbortedError(code, message string, cause error) *Error {
	return &Error{Kind: ErrAborted, Code: code, Message: message, Cause: cause}
}
