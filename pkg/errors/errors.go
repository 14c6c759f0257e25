// Package errors defines common error types for the simulator.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown       = "UNKNOWN_ERROR"
	CodeConfigInvalid = "CONFIG_INVALID"
	CodeRngExhausted  = "RNG_EXHAUSTED"
	CodeNonFinite     = "NON_FINITE_VALUE"
	CodeCancelled     = "CANCELLED"
	CodeDatabaseError = "DATABASE_ERROR"
	CodeRenderError   = "RENDER_ERROR"
	CodeWriteError    = "WRITE_ERROR"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances.
var (
	ErrConfigInvalid = New(CodeConfigInvalid, "invalid configuration")
	ErrRngExhausted  = New(CodeRngExhausted, "rng stream exhausted")
	ErrNonFinite     = New(CodeNonFinite, "non-finite value")
	ErrCancelled     = New(CodeCancelled, "cancellation requested")
	ErrDatabaseError = New(CodeDatabaseError, "database error")
	ErrRenderError   = New(CodeRenderError, "render error")
	ErrWriteError    = New(CodeWriteError, "write error")
)

// IsConfigInvalid checks if the error is a configuration error.
func IsConfigInvalid(err error) bool {
	return errors.Is(err, ErrConfigInvalid)
}

// IsNonFinite checks if the error is a non-finite arithmetic error.
func IsNonFinite(err error) bool {
	return errors.Is(err, ErrNonFinite)
}

// IsCancelled checks if the error is a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
