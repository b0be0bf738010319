package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness. Business
// rejections produced by the decision pipeline are not errors and never use
// this type; only hard failures do.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined hard failures.
var (
	ErrInvalidInput          = New("invalid_input", http.StatusBadRequest, "invalid input")
	ErrUnauthenticated       = New("unauthenticated", http.StatusUnauthorized, "unauthenticated")
	ErrInsufficientPrivilege = New("insufficient_privilege", http.StatusForbidden, "insufficient privilege")
	ErrNotFound              = New("not_found", http.StatusNotFound, "resource not found")
	ErrConflict              = New("conflict", http.StatusConflict, "conflict")
	ErrStoreUnavailable      = New("store_unavailable", http.StatusServiceUnavailable, "backing store unavailable")
	ErrValidation            = New("validation_error", http.StatusBadRequest, "validation failed")
	ErrInternal              = New("internal_error", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss             = New("cache_miss", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
