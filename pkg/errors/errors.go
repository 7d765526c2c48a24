package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ConnectionFailed means the daemon socket could not be opened
	ConnectionFailed ErrorType = "connection"

	// TransportIO represents write, flush or read failures on an open connection
	TransportIO ErrorType = "transport"

	// FrameError represents a response that could not be split into headers and body
	FrameError ErrorType = "frame"

	// Generic carries a daemon-reported message or an undecodable body
	Generic ErrorType = "generic"

	// NotFound means the addressed container or volume does not exist
	NotFound ErrorType = "not_found"

	// ConfigError represents configuration errors
	ConfigError ErrorType = "config"

	// ValidationError represents validation errors
	ValidationError ErrorType = "validation"

	// SystemError represents system-level errors
	SystemError ErrorType = "system"
)

// DomainError is the base error type for domain-specific errors
type DomainError struct {
	Type      ErrorType
	Domain    string
	Message   string
	Cause     error
	Timestamp time.Time
	Details   map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Domain, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Domain, e.Type, e.Message)
}

// Unwrap returns the cause of the error
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns a string detail, or "" when it is absent.
func (e *DomainError) Detail(key string) string {
	if v, ok := e.Details[key].(string); ok {
		return v
	}
	return ""
}

func newError(t ErrorType, domain, message string, cause error) *DomainError {
	return &DomainError{
		Type:      t,
		Domain:    domain,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewConnectionError creates an error for a socket that could not be opened
func NewConnectionError(domain, message string, cause error) *DomainError {
	return newError(ConnectionFailed, domain, message, cause)
}

// NewTransportError creates an I/O error for the given operation (write, flush, read)
func NewTransportError(domain, op string, cause error) *DomainError {
	return newError(TransportIO, domain, op+" failed", cause).WithDetail("op", op)
}

// NewFrameError creates a response framing error
func NewFrameError(domain, message string, cause error) *DomainError {
	return newError(FrameError, domain, message, cause)
}

// NewGenericError creates an error carrying a daemon message or raw body
func NewGenericError(domain, message string) *DomainError {
	return newError(Generic, domain, message, nil)
}

// NewNotFoundError creates an error for a missing resource identified by id
func NewNotFoundError(domain, id, message string) *DomainError {
	return newError(NotFound, domain, message, nil).WithDetail("id", id)
}

// NewConfigError creates a new configuration error
func NewConfigError(domain, message string, cause error) *DomainError {
	return newError(ConfigError, domain, message, cause)
}

// NewValidationError creates a new validation error
func NewValidationError(domain, message string, cause error) *DomainError {
	return newError(ValidationError, domain, message, cause)
}

// NewSystemError creates a new system-level error
func NewSystemError(domain, message string, cause error) *DomainError {
	return newError(SystemError, domain, message, cause)
}

// TypeOf returns the type of the first DomainError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var domainErr *DomainError
	if stderrors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// IsErrorOfType checks if an error is of a specific type
func IsErrorOfType(err error, errorType ErrorType) bool {
	return err != nil && TypeOf(err) == errorType
}

// IsConnectionError checks if an error is a connection error
func IsConnectionError(err error) bool {
	return IsErrorOfType(err, ConnectionFailed)
}

// IsTransportError checks if an error is a transport I/O error
func IsTransportError(err error) bool {
	return IsErrorOfType(err, TransportIO)
}

// IsFrameError checks if an error is a framing error
func IsFrameError(err error) bool {
	return IsErrorOfType(err, FrameError)
}

// IsGenericError checks if an error is a generic daemon error
func IsGenericError(err error) bool {
	return IsErrorOfType(err, Generic)
}

// IsNotFoundError checks if an error is a not-found error
func IsNotFoundError(err error) bool {
	return IsErrorOfType(err, NotFound)
}

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	return IsErrorOfType(err, ConfigError)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return IsErrorOfType(err, ValidationError)
}

// IsSystemError checks if an error is a system error
func IsSystemError(err error) bool {
	return IsErrorOfType(err, SystemError)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
