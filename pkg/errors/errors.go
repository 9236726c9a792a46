package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
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

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// Binome pairing outcomes. These are business verdicts rather than faults:
// handlers surface the code and message directly to the student.
var (
	ErrAlreadyPaired        = New("ALREADY_PAIRED", http.StatusConflict, "student already belongs to a binome")
	ErrDuplicateRequest     = New("DUPLICATE_REQUEST", http.StatusConflict, "a pending request to this student already exists")
	ErrPreviouslyRejected   = New("PREVIOUSLY_REJECTED", http.StatusConflict, "this student has already rejected a request from you")
	ErrNotOwner             = New("NOT_OWNER", http.StatusForbidden, "request does not belong to you")
	ErrNotPending           = New("NOT_PENDING", http.StatusConflict, "request is no longer pending")
	ErrRequesterUnavailable = New("REQUESTER_UNAVAILABLE", http.StatusConflict, "requesting student has joined another binome")
	ErrSujetAlreadyChosen   = New("SUJET_ALREADY_CHOSEN", http.StatusConflict, "binome already has a sujet")
	ErrScheduleConflict     = New("SCHEDULE_CONFLICT", http.StatusConflict, "soutenance slot conflict")
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
