package errors

import (
	"errors"
	"fmt"
)

// Error codes for programmatic handling.
const (
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeInvalidEvent     = "INVALID_EVENT"
	CodeReplayInProgress = "REPLAY_IN_PROGRESS"
	CodeInvalidSpeed     = "INVALID_SPEED"
	CodeStoreError       = "STORE_ERROR"
	CodeNotFound         = "NOT_FOUND"
)

// StatecastError is a structured error with a code and actionable suggestion.
type StatecastError struct {
	Code       string // machine-readable code (e.g. INVALID_EVENT)
	Message    string // human-readable description
	Suggestion string // actionable fix
	Err        error  // wrapped underlying error
}

// Error implements the error interface.
func (e *StatecastError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap supports errors.Is / errors.As.
func (e *StatecastError) Unwrap() error {
	return e.Err
}

// New creates a StatecastError with the given code and message.
func New(code, message string) *StatecastError {
	return &StatecastError{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code, format string, args ...interface{}) *StatecastError {
	return &StatecastError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a StatecastError wrapping an existing error.
func Wrap(code, message string, err error) *StatecastError {
	return &StatecastError{Code: code, Message: message, Err: err}
}

// WithSuggestion sets the suggestion and returns the receiver.
func (e *StatecastError) WithSuggestion(suggestion string) *StatecastError {
	e.Suggestion = suggestion
	return e
}

// Is checks whether target matches this error's code.
func (e *StatecastError) Is(target error) bool {
	var se *StatecastError
	if errors.As(target, &se) {
		return e.Code == se.Code
	}
	return false
}

// AsCode extracts the error code, or "" if err is not a StatecastError.
func AsCode(err error) string {
	var se *StatecastError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code string) bool {
	return err != nil && AsCode(err) == code
}

// Suggestion extracts the suggestion from an error, or "" if not a StatecastError.
func Suggestion(err error) string {
	var se *StatecastError
	if errors.As(err, &se) {
		return se.Suggestion
	}
	return ""
}
