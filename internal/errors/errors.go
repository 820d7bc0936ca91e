// Package errors provides error handling functionality for the chat client.
// It defines error categories, error codes, and constructors shared by the
// session, transport and REST client.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryAuth represents missing or rejected credentials
	CategoryAuth ErrorCategory = "auth"
	// CategoryTransport represents connection-level failures
	CategoryTransport ErrorCategory = "transport"
	// CategoryValidation represents malformed payloads
	CategoryValidation ErrorCategory = "validation"
	// CategoryAPI represents REST collaborator failures
	CategoryAPI ErrorCategory = "api"
)

// ErrorCode represents specific error codes
type ErrorCode string

const (
	// Authentication errors
	ErrCodeMissingToken ErrorCode = "MISSING_TOKEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Transport errors
	ErrCodeDialFailed         ErrorCode = "DIAL_FAILED"
	ErrCodeReconnectExhausted ErrorCode = "RECONNECT_EXHAUSTED"
	ErrCodeNotConnected       ErrorCode = "NOT_CONNECTED"
	ErrCodeWriteFailed        ErrorCode = "WRITE_FAILED"

	// Validation errors
	ErrCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"

	// API errors
	ErrCodeHTTPStatus      ErrorCode = "HTTP_STATUS"
	ErrCodeRequestFailed   ErrorCode = "REQUEST_FAILED"
	ErrCodeInvalidResponse ErrorCode = "INVALID_RESPONSE"
)

// ChatError represents a client error with category and recoverability information
type ChatError struct {
	Category    ErrorCategory
	Code        ErrorCode
	Message     string
	Recoverable bool
	StatusCode  int // HTTP status, only for API errors
	Cause       error
}

// Error implements the error interface
func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// IsFatal returns true if retrying the same operation cannot succeed
func (e *ChatError) IsFatal() bool {
	return !e.Recoverable
}

// NewAuthError creates a new authentication error (fatal)
func NewAuthError(code ErrorCode, message string, cause error) *ChatError {
	return &ChatError{
		Category:    CategoryAuth,
		Code:        code,
		Message:     message,
		Recoverable: false, // A new token is required
		Cause:       cause,
	}
}

// NewTransportError creates a new transport error (recoverable by reconnecting)
func NewTransportError(code ErrorCode, message string, cause error) *ChatError {
	return &ChatError{
		Category:    CategoryTransport,
		Code:        code,
		Message:     message,
		Recoverable: true,
		Cause:       cause,
	}
}

// NewValidationError creates a new validation error (recoverable)
func NewValidationError(code ErrorCode, message string, cause error) *ChatError {
	return &ChatError{
		Category:    CategoryValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
		Cause:       cause,
	}
}

// NewAPIError creates a new REST error; 4xx other than 408/429 are fatal
func NewAPIError(code ErrorCode, statusCode int, message string, cause error) *ChatError {
	recoverable := statusCode == 0 || statusCode >= 500 || statusCode == 408 || statusCode == 429
	return &ChatError{
		Category:    CategoryAPI,
		Code:        code,
		Message:     message,
		Recoverable: recoverable,
		StatusCode:  statusCode,
		Cause:       cause,
	}
}

// Common error constructors for convenience

// ErrMissingToken creates a missing token error
func ErrMissingToken() *ChatError {
	return NewAuthError(ErrCodeMissingToken, "Authentication token is required", nil)
}

// ErrDialFailed creates a dial failure error
func ErrDialFailed(cause error) *ChatError {
	return NewTransportError(ErrCodeDialFailed, "Failed to connect to chat server", cause)
}

// ErrReconnectExhausted creates a reconnect exhaustion error (fatal for the current session)
func ErrReconnectExhausted(attempts int) *ChatError {
	e := NewTransportError(ErrCodeReconnectExhausted,
		fmt.Sprintf("Gave up reconnecting after %d attempts", attempts), nil)
	e.Recoverable = false
	return e
}

// ErrNotConnected creates a not connected error
func ErrNotConnected() *ChatError {
	return NewTransportError(ErrCodeNotConnected, "Not connected to chat server", nil)
}

// ErrWriteFailed creates a socket write error
func ErrWriteFailed(cause error) *ChatError {
	return NewTransportError(ErrCodeWriteFailed, "Failed to write to chat server", cause)
}

// ErrInvalidPayload creates an invalid payload error
func ErrInvalidPayload(details string, cause error) *ChatError {
	return NewValidationError(ErrCodeInvalidPayload, fmt.Sprintf("Invalid payload: %s", details), cause)
}

// ErrHTTPStatus creates an error for a non-2xx REST response
func ErrHTTPStatus(statusCode int, body string) *ChatError {
	code := ErrCodeHTTPStatus
	if statusCode == 401 || statusCode == 403 {
		code = ErrCodeUnauthorized
	}
	return NewAPIError(code, statusCode, fmt.Sprintf("Server returned %d: %s", statusCode, body), nil)
}

// ErrRequestFailed creates an error for a REST call that never got a response
func ErrRequestFailed(cause error) *ChatError {
	return NewAPIError(ErrCodeRequestFailed, 0, "Request to chat API failed", cause)
}

// ErrInvalidResponse creates an error for an undecodable REST response
func ErrInvalidResponse(cause error) *ChatError {
	return NewAPIError(ErrCodeInvalidResponse, 0, "Chat API returned an invalid response", cause)
}
