package errors

import (
	"errors"
	"fmt"
)

// Generic error kinds

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a dependency is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Proxy setup errors

var (
	// ErrInvalidTransition indicates a step advance to a state that is not
	// the defined successor of the current step
	ErrInvalidTransition = errors.New("invalid proxy setup transition")

	// ErrUnknownStep indicates a step name outside the wizard's step set
	ErrUnknownStep = errors.New("unknown proxy setup step")

	// ErrSessionNotFound indicates the proxy setup session does not exist or expired
	ErrSessionNotFound = errors.New("proxy setup session not found")

	// ErrAccountNotFound indicates an address is not known to the account registry
	ErrAccountNotFound = errors.New("account not found")
)

// Topic fetch errors

var (
	// ErrBackendUnreachable indicates every topic backend candidate failed
	ErrBackendUnreachable = errors.New("governance backend unreachable")

	// ErrMalformedResponse indicates a backend body failed shape validation
	ErrMalformedResponse = errors.New("malformed backend response")

	// ErrUnknownNetwork indicates a network identifier outside mainnet/kovan
	ErrUnknownNetwork = errors.New("unknown network")
)

// ValidationError represents a validation error with field-specific details
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// HTTPStatusError is returned when a backend answers outside the 2xx range
type HTTPStatusError struct {
	Code   int
	Status string
	Body   string
}

// Error implements the error interface
func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: %s", e.Status)
	}
	return fmt.Sprintf("unexpected status: %s: %s", e.Status, e.Body)
}

// StatusCode exposes the HTTP status for retry classification
func (e *HTTPStatusError) StatusCode() int {
	return e.Code
}

// MultiError wraps multiple errors
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors (%d): %v", len(m.Errors), m.Errors[len(m.Errors)-1])
}

// Unwrap exposes every collected error to errors.Is/As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the list
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Last returns the most recently added error
func (m *MultiError) Last() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m.Errors[len(m.Errors)-1]
}

// ToError returns the MultiError as an error, or nil if no errors
func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
