// Package errors provides structured error types for seqexport.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI, the HTTP surface and the library
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures
//   - *_FAILED: A collaborator (encoder, transcoder, delivery) reported a failure
//   - EXPORT_* / CONCURRENT_*: Export lifecycle outcomes
//   - INTERNAL_*: Unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidDimensionInput, "beat count %d is negative", n)
//	if errors.Is(err, errors.ErrCodeInvalidDimensionInput) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeEncodingFailed, origErr, "finalize gif")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput          Code = "INVALID_INPUT"
	ErrCodeInvalidDimensionInput Code = "INVALID_DIMENSION_INPUT"
	ErrCodeInvalidFormat         Code = "INVALID_FORMAT"
	ErrCodeInvalidSequence       Code = "INVALID_SEQUENCE"
	ErrCodeInvalidConfig         Code = "INVALID_CONFIG"
	ErrCodeInvalidPath           Code = "INVALID_PATH"

	// Resource errors
	ErrCodeMemoryBudgetExceeded Code = "MEMORY_BUDGET_EXCEEDED"
	ErrCodeNotFound             Code = "NOT_FOUND"

	// Export lifecycle
	ErrCodeConcurrentExport Code = "CONCURRENT_EXPORT_REJECTED"
	ErrCodeExportCancelled  Code = "EXPORT_CANCELLED"

	// Collaborator failures
	ErrCodeCaptureFailed     Code = "CAPTURE_FAILED"
	ErrCodeEncodingFailed    Code = "ENCODING_FAILED"
	ErrCodeTranscodingFailed Code = "TRANSCODING_FAILED"
	ErrCodeDeliveryFailed    Code = "DELIVERY_FAILED"

	// Network errors
	ErrCodeNetwork Code = "NETWORK_ERROR"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It walks the whole chain, so a coded error wrapped inside another coded
// error is still found.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s", e.Message, UserMessage(e.Cause))
		}
		return e.Message
	}
	return err.Error()
}

// IsCancelled reports whether err represents a cooperative cancellation.
func IsCancelled(err error) bool {
	return Is(err, ErrCodeExportCancelled)
}
