package errors

import (
	"errors"
	"fmt"
)

// Error is the structured error type for localrag.
// It provides context for error handling, logging, and retry decisions.
type Error struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Extract, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried next cycle.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with *Error values.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error.
// The wrapped error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// IOError creates a transient file I/O error (retryable next cycle).
func IOError(message string, cause error) *Error {
	return New(ErrCodeFileUnreadable, message, cause)
}

// ExtractionError creates a content extraction error.
// Extraction errors are permanent for a given content signature: the file
// is skipped until its content changes.
func ExtractionError(message string, cause error) *Error {
	return New(ErrCodeContentCorrupt, message, cause)
}

// IndexError creates an index write error (retryable next cycle).
func IndexError(message string, cause error) *Error {
	return New(ErrCodeIndexWrite, message, cause)
}

// IsRetryable checks if an error should be retried next cycle.
// Unknown (non-structured) errors are treated as retryable, which biases
// toward self-healing: idempotent reprocessing is safe, skipping is not.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return true
}

// CodeOf returns the error code of a structured error, or empty string.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
