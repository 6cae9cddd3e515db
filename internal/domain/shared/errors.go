package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies application errors so the transport layer can map
// them to status codes without inspecting message text.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindNotFound      ErrorKind = "not_found"
	KindInvalidState  ErrorKind = "invalid_state"
	KindForbidden     ErrorKind = "forbidden"
	KindUnprocessable ErrorKind = "unprocessable"
	KindConflict      ErrorKind = "conflict"
)

// AppError is the error type crossing the application/transport boundary.
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return e.Message
}

// NewValidationError creates an error for invalid caller input.
func NewValidationError(message string) *AppError {
	return &AppError{Kind: KindValidation, Code: "validation_failed", Message: message}
}

// NewNotFoundError creates an error for a missing resource.
func NewNotFoundError(resource, id string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    "not_found",
		Message: fmt.Sprintf("%s %s not found", resource, id),
	}
}

// NewInvalidStateError creates an error for a disallowed state transition.
func NewInvalidStateError(from, to string) *AppError {
	return &AppError{
		Kind:    KindInvalidState,
		Code:    "invalid_state",
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

// NewForbiddenError creates an error for an ownership/permission violation.
func NewForbiddenError(message string) *AppError {
	return &AppError{Kind: KindForbidden, Code: "forbidden", Message: message}
}

// NewUnprocessableError creates an error for a request that is well-formed
// but cannot be fulfilled (e.g. an address that does not geocode). The code
// is kept stable so clients can branch on it.
func NewUnprocessableError(code, message string) *AppError {
	return &AppError{Kind: KindUnprocessable, Code: code, Message: message}
}

// NewConflictError creates an error for a concurrent modification conflict.
func NewConflictError(message string) *AppError {
	return &AppError{Kind: KindConflict, Code: "conflict", Message: message}
}

// AsAppError unwraps err into an *AppError if it is one.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
