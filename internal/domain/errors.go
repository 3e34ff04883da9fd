// Package domain contains the core domain models and types.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure cases.
var (
	// ErrProviderTimeout indicates the AI provider did not respond in time.
	ErrProviderTimeout = errors.New("AI provider timeout")

	// ErrProviderUnavailable indicates the AI provider is not available.
	ErrProviderUnavailable = errors.New("AI provider unavailable")

	// ErrRateLimited indicates the provider rejected the call for quota reasons.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrEmptyResponse indicates the provider answered without any text.
	ErrEmptyResponse = errors.New("empty response from AI provider")

	// ErrContentBlocked indicates the provider refused the prompt or answer.
	ErrContentBlocked = errors.New("content blocked by provider")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrReportNotFound indicates no stored report has the requested id.
	ErrReportNotFound = errors.New("report not found")

	// ErrUnsupportedMedia indicates an upload whose type cannot be turned into text.
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// CallError wraps a provider call failure with retry semantics.
type CallError struct {
	// Op is the operation that failed.
	Op string

	// Err is the underlying error.
	Err error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CallError) Unwrap() error {
	return e.Err
}

// WrapError creates a new CallError with context.
func WrapError(op string, err error, retryable bool) *CallError {
	return &CallError{
		Op:        op,
		Err:       err,
		Retryable: retryable,
	}
}

// IsPermanent reports whether err was classified as not worth retrying.
// Errors without a classification are treated as transient.
func IsPermanent(err error) bool {
	var ce *CallError
	if errors.As(err, &ce) {
		return !ce.Retryable
	}
	return false
}
