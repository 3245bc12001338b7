// Package apperr defines the typed errors shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a domain error that knows its HTTP status.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so that errors.Is(err, apperr.ErrValidation)
// holds for any validation error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches a cause to a copy of base.
func Wrap(base *Error, err error, message string) *Error {
	out := *base
	out.Err = err
	if message != "" {
		out.Message = message
	}
	return &out
}

// With returns a copy of base with a different message.
func With(base *Error, message string) *Error {
	return Wrap(base, nil, message)
}

var (
	ErrValidation     = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrNetwork        = New("NETWORK_ERROR", http.StatusBadGateway, "external service unavailable")
	ErrAlreadyDecided = New("ALREADY_DECIDED", http.StatusConflict, "request already decided")
	ErrNotFound       = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrUnauthorized   = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden      = New("FORBIDDEN", http.StatusForbidden, "access denied")
	ErrConflict       = New("CONFLICT", http.StatusConflict, "conflict")
	ErrInternal       = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// ErrDeviceAccess never crosses the wire; it classifies capture device failures.
	ErrDeviceAccess = New("DEVICE_ACCESS", 0, "camera unavailable")
)

// From normalises any error into an *Error; unknown errors become internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(ErrInternal, err, "")
}
