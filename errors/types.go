package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Sync errors surfaced to the presentation layer
	ErrCodeConnectivity     ErrorCode = "CONNECTIVITY"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Record errors, recovered locally by dropping the record
	ErrCodeMalformedRecord ErrorCode = "MALFORMED_RECORD"
	ErrCodeDuplicateID     ErrorCode = "DUPLICATE_ID"

	// Caller errors
	ErrCodeInvalidQuery      ErrorCode = "INVALID_QUERY"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"

	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// General errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with context
type Error struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *Error) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new Error
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an Error
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is reports whether any error in err's chain is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var target *Error
	for stderrors.As(err, &target) {
		if target.Code == code {
			return true
		}
		if target.Cause == nil {
			return false
		}
		err = target.Cause
	}
	return false
}

// GetCode extracts the error code from the outermost *Error in the chain.
func GetCode(err error) ErrorCode {
	var target *Error
	if err == nil || !stderrors.As(err, &target) {
		return ""
	}
	return target.Code
}

// Message returns the human readable message of the outermost *Error, or
// err.Error() for foreign errors.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var target *Error
	if stderrors.As(err, &target) {
		return target.Message
	}
	return err.Error()
}
