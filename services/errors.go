package services

import (
	"errors"
	"fmt"
)

// ErrType identifies the category of a pipeline error.
type ErrType string

const (
	// ErrNotFound indicates a missing tender, submission or master item.
	ErrNotFound ErrType = "NOT_FOUND"

	// ErrInvalidState indicates an operation attempted from the wrong
	// import status.
	ErrInvalidState ErrType = "INVALID_STATE"

	// ErrInvalidFormat indicates an unreadable or mislaid spreadsheet.
	ErrInvalidFormat ErrType = "INVALID_FORMAT"

	// ErrValidationBlocking indicates error-severity issues are present.
	ErrValidationBlocking ErrType = "VALIDATION_BLOCKING"

	// ErrValidationWarning indicates warning-severity issues are present
	// and the caller did not force the import.
	ErrValidationWarning ErrType = "VALIDATION_WARNING"

	// ErrUnexpected indicates any other failure.
	ErrUnexpected ErrType = "UNEXPECTED"
)

// PipelineError is a typed error so callers can branch without string
// inspection.
type PipelineError struct {
	Type    ErrType
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// NewError creates a new pipeline error.
func NewError(t ErrType, message string) *PipelineError {
	return &PipelineError{Type: t, Message: message}
}

// NewErrorf creates a new formatted pipeline error.
func NewErrorf(t ErrType, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Type: t, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps a cause with a pipeline error type.
func WrapError(t ErrType, message string, cause error) *PipelineError {
	return &PipelineError{Type: t, Message: message, Cause: cause}
}

// IsErrType reports whether err (or anything it wraps) carries the given type.
func IsErrType(err error, t ErrType) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == t
	}
	return false
}

// NotFoundError builds the standard not-found error for a resource.
func NotFoundError(resource string, id int) *PipelineError {
	return NewErrorf(ErrNotFound, "%s %d not found", resource, id)
}

// InvalidStateError builds the standard wrong-status error.
func InvalidStateError(expected, actual string) *PipelineError {
	return NewErrorf(ErrInvalidState, "submission must be in status %q, currently %q", expected, actual)
}
