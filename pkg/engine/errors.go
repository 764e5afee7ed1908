package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an error for retry and fail-fast decisions.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on
	// retry. Examples: network timeouts, provider briefly unreachable.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a non-recoverable failure.
	// Examples: bad credentials, invalid blueprint, task failed terminally.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Common error codes surfaced by engines.
const (
	ErrCodeAuthFailed          = "AUTH_FAILED"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrCodeProviderAPI         = "PROVIDER_API_ERROR"
	ErrCodeTaskTimeout         = "TASK_TIMEOUT"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeValidation          = "VALIDATION_ERROR"
)

// Error is a classified engine error with resource and operation context.
type Error struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Code is an optional code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Resource is the resource name involved, if any.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (resource=%s)", e.Resource)
	}
	if e.Operation != "" {
		msg += fmt.Sprintf(" (operation=%s)", e.Operation)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches engine errors by class and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithResource adds resource context to the error.
func (e *Error) WithResource(name string) *Error {
	e.Resource = name
	return e
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// NewTransientError creates a transient error.
func NewTransientError(code, message string, err error) *Error {
	return &Error{Class: ErrorClassTransient, Code: code, Message: message, Err: err}
}

// NewPermanentError creates a permanent error.
func NewPermanentError(code, message string, err error) *Error {
	return &Error{Class: ErrorClassPermanent, Code: code, Message: message, Err: err}
}

// IsTransient reports whether err is classified as transient.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsCode reports whether err carries the given engine error code.
func IsCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
