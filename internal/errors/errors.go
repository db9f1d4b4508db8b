// FilePath: server/sensorlog/internal/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the kind of failure
type ErrorType string

const (
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeConflict           ErrorType = "conflict"
	ErrorTypeResourceExhausted  ErrorType = "resource_exhausted"
	ErrorTypeIntegrityViolation ErrorType = "integrity_violation"
	ErrorTypeUnavailable        ErrorType = "unavailable"
	ErrorTypeDatabase           ErrorType = "database"
	ErrorTypeInternal           ErrorType = "internal"
)

// Error is the structured error every core operation returns
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
	Details   any       `json:"details,omitempty"`
	err       error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether target is an *Error of the same type.
// A target without a type matches any *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == "" || t.Type == e.Type
}

// WithRequestID adds a request ID to the error
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// WithDetails adds additional details to the error
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func newError(t ErrorType, msg string, err error) *Error {
	return &Error{Type: t, Message: msg, err: err}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(msg string, err error) *Error {
	return newError(ErrorTypeNotFound, msg, err)
}

// NewValidationError creates a new validation error
func NewValidationError(msg string, err error) *Error {
	return newError(ErrorTypeValidation, msg, err)
}

// NewConflictError creates a new conflict error
func NewConflictError(msg string, err error) *Error {
	return newError(ErrorTypeConflict, msg, err)
}

// NewResourceExhaustedError creates an error for pool exhaustion or lock contention
func NewResourceExhaustedError(msg string, err error) *Error {
	return newError(ErrorTypeResourceExhausted, msg, err)
}

// NewIntegrityViolationError creates an error for a constraint failure surfaced by the store
func NewIntegrityViolationError(msg string, err error) *Error {
	return newError(ErrorTypeIntegrityViolation, msg, err)
}

// NewUnavailableError creates an error for an unreachable or corrupt store
func NewUnavailableError(msg string, err error) *Error {
	return newError(ErrorTypeUnavailable, msg, err)
}

// NewDatabaseError creates a new database error
func NewDatabaseError(msg string, err error) *Error {
	return newError(ErrorTypeDatabase, msg, err)
}

// NewInternalError creates a new internal error
func NewInternalError(msg string, err error) *Error {
	return newError(ErrorTypeInternal, msg, err)
}

// TypeOf returns the type of the first *Error in err's chain, or ErrorTypeInternal.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// As is errors.As re-exported so callers need only one errors import.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

func isType(err error, t ErrorType) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Type == t
}

// IsNotFound checks if an error is a NotFound error
func IsNotFound(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsValidation checks if an error is a Validation error
func IsValidation(err error) bool { return isType(err, ErrorTypeValidation) }

// IsConflict checks if an error is a Conflict error
func IsConflict(err error) bool { return isType(err, ErrorTypeConflict) }

// IsResourceExhausted checks if an error is a ResourceExhausted error
func IsResourceExhausted(err error) bool { return isType(err, ErrorTypeResourceExhausted) }

// IsIntegrityViolation checks if an error is an IntegrityViolation error
func IsIntegrityViolation(err error) bool { return isType(err, ErrorTypeIntegrityViolation) }

// IsUnavailable checks if an error is an Unavailable error
func IsUnavailable(err error) bool { return isType(err, ErrorTypeUnavailable) }
