// Package errors provides coded application errors shared by the repository,
// service and handler layers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code classifies an application error.
type Code string

const (
	ErrCodeNotFound               Code = "NOT_FOUND"
	ErrCodeInvalidInput           Code = "INVALID_INPUT"
	ErrCodeAlreadyExists          Code = "ALREADY_EXISTS"
	ErrCodeInvalidState           Code = "INVALID_STATE"
	ErrCodeActionMismatch         Code = "ACTION_MISMATCH"
	ErrCodeInsufficientRole       Code = "INSUFFICIENT_ROLE"
	ErrCodeInsufficientPermission Code = "INSUFFICIENT_PERMISSION"
	ErrCodeConfiguration          Code = "CONFIGURATION_ERROR"
	ErrCodePersistence            Code = "PERSISTENCE_FAILURE"
	ErrCodeInternal               Code = "INTERNAL"
)

// Error is an application error carrying a Code.
type Error struct {
	Code    Code
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found: %s", resource, id)}
}

// InvalidInput reports a bad request field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Field: field, Message: message}
}

// AlreadyExists reports a uniqueness conflict.
func AlreadyExists(resource, key string) *Error {
	return &Error{Code: ErrCodeAlreadyExists, Message: fmt.Sprintf("%s already exists: %s", resource, key)}
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Persistence wraps err as a persistence failure unless it is already coded.
func Persistence(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return err
	}
	return Wrap(err, ErrCodePersistence, message)
}

// HTTPStatus maps a code to the HTTP status returned to callers.
func HTTPStatus(code Code) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeAlreadyExists, ErrCodeInvalidState, ErrCodeActionMismatch:
		return http.StatusConflict
	case ErrCodeInsufficientRole, ErrCodeInsufficientPermission:
		return http.StatusForbidden
	case ErrCodeConfiguration:
		return http.StatusUnprocessableEntity
	case ErrCodePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
