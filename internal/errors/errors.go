package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes.
type ErrorCode string

const (
	// ErrValidation marks client-caused failures: bad, oversized or
	// unsupported input. Never retried.
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// ErrExternal marks a failure of a downstream AI engine after the
	// retry budget is exhausted.
	ErrExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"

	// ErrEngineRejected marks an input the engine itself refused (a
	// 4xx-class engine response). Client-caused as far as the engine is
	// concerned, so never retried.
	ErrEngineRejected ErrorCode = "ENGINE_REJECTED"

	// ErrTimeout marks a single external call that exceeded its deadline.
	ErrTimeout ErrorCode = "TIMEOUT"

	// ErrCircuitOpen marks a call rejected without dispatch because the
	// engine's circuit breaker is open.
	ErrCircuitOpen ErrorCode = "CIRCUIT_OPEN"

	// ErrInternal marks anything unclassified: filesystem failures,
	// programming defects.
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error with code and metadata.
type AppError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// HTTPStatus returns the HTTP status code for the error.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrExternal, ErrTimeout, ErrCircuitOpen, ErrEngineRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code extracts the ErrorCode from err, or ErrInternal if err carries none.
func Code(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsPermanent reports whether err must not be retried. Validation
// failures and engine-rejected input are client-caused, and an open
// circuit will reject every attempt until the cool-down elapses, so
// retrying any of them is wasted work.
func IsPermanent(err error) bool {
	switch Code(err) {
	case ErrValidation, ErrCircuitOpen, ErrEngineRejected:
		return true
	}
	return false
}

// Common error constructors
func Internal(message string) *AppError {
	return New(ErrInternal, message)
}

func InternalWrap(message string, err error) *AppError {
	return Wrap(ErrInternal, message, err)
}

func Validation(message string) *AppError {
	return New(ErrValidation, message)
}

// External wraps the last cause of an exhausted engine call.
func External(engine string, err error) *AppError {
	return Wrap(ErrExternal, fmt.Sprintf("%s engine failed: %v", engine, err), err)
}

// Timeout reports that a single call to the engine exceeded its deadline.
func Timeout(engine string) *AppError {
	return New(ErrTimeout, fmt.Sprintf("%s engine call timed out", engine))
}

// CircuitOpen reports that the engine's circuit breaker rejected the call.
func CircuitOpen(engine string) *AppError {
	return New(ErrCircuitOpen, fmt.Sprintf("%s engine circuit is open", engine))
}
