package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	// ErrorTypeUnknown represents an unknown error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeNetwork represents network-related errors
	ErrorTypeNetwork
	// ErrorTypeAuthentication represents a rejected or missing auth token
	ErrorTypeAuthentication
	// ErrorTypeAPI represents unexpected HTTP statuses from the primary
	ErrorTypeAPI
	// ErrorTypeHost represents an SQL error reported by the primary
	ErrorTypeHost
	// ErrorTypeIntegrity represents a snapshot that failed verification
	ErrorTypeIntegrity
)

// Error represents a structured error with type information
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Cause      error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsType checks if the error is of a specific type
func (e *Error) IsType(errorType ErrorType) bool {
	return e.Type == errorType
}

// NewNetworkError creates a network-related error
func NewNetworkError(message string, cause error) *Error {
	return &Error{Type: ErrorTypeNetwork, Message: message, Cause: cause}
}

// NewHostError wraps an error message returned by the primary. The message
// is kept verbatim.
func NewHostError(message string) *Error {
	return &Error{Type: ErrorTypeHost, Message: message}
}

// NewIntegrityError reports a snapshot that did not verify.
func NewIntegrityError(message string) *Error {
	return &Error{Type: ErrorTypeIntegrity, Message: message}
}

func isType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.IsType(t)
}

// IsNetworkError checks if an error is network-related
func IsNetworkError(err error) bool { return isType(err, ErrorTypeNetwork) }

// IsAuthenticationError checks if an error is authentication-related
func IsAuthenticationError(err error) bool { return isType(err, ErrorTypeAuthentication) }

// IsHostError checks if an error was reported by the primary while running SQL
func IsHostError(err error) bool { return isType(err, ErrorTypeHost) }

// IsIntegrityError checks if a snapshot failed verification
func IsIntegrityError(err error) bool { return isType(err, ErrorTypeIntegrity) }

// WrapHTTPError wraps an HTTP response into an appropriate Error type
func WrapHTTPError(resp *http.Response, message string) *Error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{
			Type:       ErrorTypeAuthentication,
			Message:    fmt.Sprintf("%s: %s", message, resp.Status),
			StatusCode: resp.StatusCode,
		}
	default:
		return &Error{
			Type:       ErrorTypeAPI,
			Message:    fmt.Sprintf("%s: %s", message, resp.Status),
			StatusCode: resp.StatusCode,
		}
	}
}
