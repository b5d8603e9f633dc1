// Package domain defines core types, interfaces, and errors for the sharing server.
package domain

import "fmt"

// NotFoundError indicates a share, schema, table, or file was not found.
// Inactive shares are reported as not found so their existence is not leaked.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// InvalidLocationError indicates a table location is missing or malformed
// for the active storage backend.
type InvalidLocationError struct {
	Message string
}

func (e *InvalidLocationError) Error() string { return e.Message }

// SchemaUnavailableError indicates no schema could be produced for a table:
// the log declares no metadata, or no Parquet file was readable.
type SchemaUnavailableError struct {
	Message string
}

func (e *SchemaUnavailableError) Error() string { return e.Message }

// BackendUnavailableError indicates the storage backend is not configured
// or failed to initialize. Callers degrade rather than crash.
type BackendUnavailableError struct {
	Message string
}

func (e *BackendUnavailableError) Error() string { return e.Message }

// DecodeError indicates corrupt input that cannot be recovered, such as an
// unreadable transaction log. Bad page tokens recover to offset 0 instead
// of raising this.
type DecodeError struct {
	Message string
}

func (e *DecodeError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidLocation creates an InvalidLocationError with a formatted message.
func ErrInvalidLocation(format string, args ...interface{}) *InvalidLocationError {
	return &InvalidLocationError{Message: fmt.Sprintf(format, args...)}
}

// ErrSchemaUnavailable creates a SchemaUnavailableError with a formatted message.
func ErrSchemaUnavailable(format string, args ...interface{}) *SchemaUnavailableError {
	return &SchemaUnavailableError{Message: fmt.Sprintf(format, args...)}
}

// ErrBackendUnavailable creates a BackendUnavailableError with a formatted message.
func ErrBackendUnavailable(format string, args ...interface{}) *BackendUnavailableError {
	return &BackendUnavailableError{Message: fmt.Sprintf(format, args...)}
}

// ErrDecode creates a DecodeError with a formatted message.
func ErrDecode(format string, args ...interface{}) *DecodeError {
	return &DecodeError{Message: fmt.Sprintf(format, args...)}
}
