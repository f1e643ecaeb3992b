// Package errors is the service's error taxonomy. Every error crossing a
// package boundary is an *Error carrying a stable Code that the transport
// layers map to HTTP statuses and gRPC codes.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies a class of failure.
type Code string

const (
	ErrCodeCapacityExceeded     Code = "CAPACITY_EXCEEDED"
	ErrCodeInvalidState         Code = "INVALID_STATE"
	ErrCodeDuplicateApplication Code = "DUPLICATE_APPLICATION"
	ErrCodeInvalidInput         Code = "INVALID_INPUT"
	ErrCodePermissionDenied     Code = "PERMISSION_DENIED"
	ErrCodeUnauthorized         Code = "UNAUTHORIZED"
	ErrCodeConflict             Code = "CONFLICT"
	ErrCodeNotFound             Code = "NOT_FOUND"
	ErrCodeStorage              Code = "STORAGE_ERROR"
	ErrCodeNotify               Code = "NOTIFY_ERROR"
	ErrCodeRateLimited          Code = "RATE_LIMITED"
	ErrCodeInternal             Code = "INTERNAL"
)

// Error is a coded error with optional field and detail payload.
type Error struct {
	Code    Code
	Message string
	Field   string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a key/value pair to the error details and returns e.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithDetails merges details into the error and returns e.
func (e *Error) WithDetails(details map[string]any) *Error {
	for k, v := range details {
		e.WithDetail(k, v)
	}
	return e
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %s not found", resource, id),
		Details: map[string]any{"resource": resource, "id": id},
	}
}

// InvalidInput reports a malformed request field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: message, Field: field}
}

// PermissionDenied reports a missing role or ownership.
func PermissionDenied(message string) *Error {
	return &Error{Code: ErrCodePermissionDenied, Message: message}
}

// InvalidState reports a transition not permitted from the current state.
func InvalidState(message string) *Error {
	return &Error{Code: ErrCodeInvalidState, Message: message}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in err's chain, ErrCodeInternal
// for foreign errors and the empty code for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
