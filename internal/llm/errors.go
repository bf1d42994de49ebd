package llm

import (
	"errors"
	"fmt"
)

// Errors returned by the chat client. Every failure to obtain a completion
// matches ErrUpstreamUnavailable.
var (
	// ErrUpstreamUnavailable means the hosted model could not produce an answer.
	ErrUpstreamUnavailable = errors.New("llm upstream unavailable")

	// ErrAuthError indicates a missing or rejected API key.
	ErrAuthError = errors.New("llm authentication error")

	// ErrRateLimited indicates the provider rejected the request with 429.
	ErrRateLimited = errors.New("llm rate limit exceeded")

	// ErrInvalidResponse indicates an unexpected response shape.
	ErrInvalidResponse = errors.New("invalid response from llm")
)

// APIError is a non-success response from the chat completion endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm API error (status %d): %s", e.StatusCode, e.Message)
}

// Is makes every APIError match ErrUpstreamUnavailable.
func (e *APIError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// IsAuthError returns true if the error indicates an authentication problem.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrAuthError) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
	}
	return false
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
