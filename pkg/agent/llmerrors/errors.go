// Package llmerrors classifies failures of LLM provider calls so the
// resilience middleware can decide whether another attempt is worthwhile.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorType is the category of a provider failure. The value doubles as the
// metrics label.
type ErrorType string

// Retryable categories.
const (
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeTransient     ErrorType = "transient"
	ErrorTypeEmptyResponse ErrorType = "empty_response"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// Terminal categories.
const (
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeBadPrompt ErrorType = "bad_prompt"

	// ErrorTypeServiceUnavailable is reported once retries are exhausted or
	// the circuit breaker is open.
	ErrorTypeServiceUnavailable ErrorType = "service_unavailable"
)

func (et ErrorType) String() string { return string(et) }

// Terminal reports whether no retry can help.
func (et ErrorType) Terminal() bool {
	return et == ErrorTypeAuth || et == ErrorTypeBadPrompt || et == ErrorTypeServiceUnavailable
}

// Error is a classified provider failure.
type Error struct {
	Err        error
	Message    string
	Type       ErrorType
	StatusCode int
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("LLM error (%s): %s", e.Type, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("LLM error (%s): %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("LLM error (%s): status %d", e.Type, e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether the category allows another attempt.
func (e *Error) IsRetryable() bool { return !e.Type.Terminal() }

func asError(err error) (*Error, bool) {
	var llmErr *Error
	ok := errors.As(err, &llmErr)
	return llmErr, ok
}

// Is reports whether err carries the given category.
func Is(err error, errorType ErrorType) bool {
	llmErr, ok := asError(err)
	return ok && llmErr.Type == errorType
}

// TypeOf returns the category of err, ErrorTypeUnknown when unclassified.
func TypeOf(err error) ErrorType {
	if llmErr, ok := asError(err); ok {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable reports whether err may succeed on another attempt. Unclassified
// errors are retried; context cancellation never is.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if llmErr, ok := asError(err); ok {
		return llmErr.IsRetryable()
	}
	return true
}

// IsServiceUnavailable reports a provider given up on by the middleware.
func IsServiceUnavailable(err error) bool {
	return Is(err, ErrorTypeServiceUnavailable)
}

// NewError creates a classified error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewErrorWithStatus creates a classified error carrying an HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{Type: errorType, StatusCode: statusCode, Message: message}
}

// NewErrorWithCause creates a classified error wrapping cause.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// NewServiceUnavailableError reports a provider that stayed unusable after
// attempts tries.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeServiceUnavailable,
		Err:     cause,
		Message: fmt.Sprintf("service unavailable after %d attempts: %v", attempts, cause),
	}
}

// FromStatus maps an HTTP status to a category.
func FromStatus(status int) ErrorType {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrorTypeAuth
	case status == http.StatusRequestTimeout, status >= 500:
		return ErrorTypeTransient
	case status >= 400:
		return ErrorTypeBadPrompt
	default:
		return ErrorTypeUnknown
	}
}

// Classify wraps an SDK error from provider. The HTTP status wins when known;
// otherwise network errors are transient and anything else is unknown.
// Already classified errors are returned as is.
func Classify(provider string, status int, err error) *Error {
	if llmErr, ok := asError(err); ok {
		return llmErr
	}
	if status > 0 {
		return &Error{
			Type:       FromStatus(status),
			StatusCode: status,
			Err:        err,
			Message:    fmt.Sprintf("%s API error: %v", provider, err),
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewErrorWithCause(ErrorTypeTransient, err, fmt.Sprintf("%s not reachable: %v", provider, err))
	}
	return NewErrorWithCause(ErrorTypeUnknown, err, fmt.Sprintf("%s API error: %v", provider, err))
}
