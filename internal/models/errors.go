package models

import (
	"errors"
	"fmt"
)

// Error codes used across the client. Components classify failures by code
// rather than by inspecting message text.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeNotFound       = "NOT_FOUND"
	CodeTransient      = "TRANSIENT_ERROR"
	CodeSchemaMismatch = "SCHEMA_MISMATCH"
	CodeAborted        = "ABORTED"
	CodeStorage        = "STORAGE_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
)

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

// NewTransientError wraps a network or backend failure that the viewer may
// retry. The backend's human-readable message is preserved when present.
func NewTransientError(message string, err error) *AppError {
	if message == "" {
		message = "Something went wrong, please try again"
	}
	return &AppError{
		Code:    CodeTransient,
		Message: message,
		Err:     err,
	}
}

// NewSchemaMismatchError marks the recoverable "relationship not found"
// condition raised by backends whose schema lacks a requested join.
func NewSchemaMismatchError(relation string, err error) *AppError {
	return &AppError{
		Code:    CodeSchemaMismatch,
		Message: fmt.Sprintf("relationship %q not available on this backend", relation),
		Err:     err,
	}
}

// NewAbortedError marks a cancelled operation. Aborted errors must never be
// shown to the viewer and must never mutate component state.
func NewAbortedError(err error) *AppError {
	return &AppError{
		Code:    CodeAborted,
		Message: "operation aborted",
		Err:     err,
	}
}

func NewStorageError(message string, err error) *AppError {
	if message == "" {
		message = "Upload failed"
	}
	return &AppError{
		Code:    CodeStorage,
		Message: message,
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal error",
		Err:     err,
	}
}

// ErrorCode extracts the AppError code from err, or CodeInternal if err is
// not an AppError.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given AppError code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsValidation(err error) bool     { return IsCode(err, CodeValidation) }
func IsUnauthorized(err error) bool   { return IsCode(err, CodeUnauthorized) }
func IsSchemaMismatch(err error) bool { return IsCode(err, CodeSchemaMismatch) }
func IsAborted(err error) bool        { return IsCode(err, CodeAborted) }
func IsStorage(err error) bool        { return IsCode(err, CodeStorage) }
