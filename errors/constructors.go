package errors

import (
	"fmt"
)

// Connectivity creates an error for an unreachable transport.
func Connectivity(collection string, cause error) *Error {
	return Wrap(cause, ErrCodeConnectivity, fmt.Sprintf("cannot reach collection '%s'", collection)).
		WithDetail("collection", collection)
}

// PermissionDenied creates an error for access refused by the remote store.
func PermissionDenied(collection string, cause error) *Error {
	return Wrap(cause, ErrCodePermissionDenied, fmt.Sprintf("access to collection '%s' denied", collection)).
		WithDetail("collection", collection)
}

// MalformedRecord creates an error for a remote record that cannot be parsed into an entity.
func MalformedRecord(id string, cause error) *Error {
	msg := "malformed record"
	if id != "" {
		msg = fmt.Sprintf("malformed record '%s'", id)
	}
	return Wrap(cause, ErrCodeMalformedRecord, msg).
		WithDetail("id", id)
}

// DuplicateID creates an error for a snapshot that repeats an entity id.
func DuplicateID(id string) *Error {
	return New(ErrCodeDuplicateID, fmt.Sprintf("duplicate id '%s' in snapshot", id)).
		WithDetail("id", id)
}

// InvalidQuery creates an error for malformed query parameters.
func InvalidQuery(reason string) *Error {
	return New(ErrCodeInvalidQuery, fmt.Sprintf("invalid query: %s", reason))
}

// InvalidTransition creates an error for an operation not allowed in the current sync phase.
func InvalidTransition(phase, op string) *Error {
	return New(ErrCodeInvalidTransition, fmt.Sprintf("cannot %s while %s", op, phase)).
		WithDetail("phase", phase).
		WithDetail("operation", op)
}

// NotFound creates an error for a missing collection or document.
func NotFound(kind, name string) *Error {
	return New(ErrCodeNotFound, fmt.Sprintf("%s '%s' not found", kind, name)).
		WithDetail(kind, name)
}

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *Error {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *Error {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *Error {
	return Wrap(cause, ErrCodeInternal, message)
}
