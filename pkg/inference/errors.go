package inference

import (
	"errors"
	"fmt"
)

var (
	ErrNoAPIKey   = errors.New("inference: API key required")
	ErrNoModel    = errors.New("inference: model required")
	ErrEmptyReply = errors.New("inference: empty reply")

	// ErrProviderUnavailable is returned by a chain with nothing to call
	// and by a closed mock.
	ErrProviderUnavailable = errors.New("inference: provider unavailable")
)

// APIError is a non-success answer from a model endpoint. Gemini errors
// are mapped onto it too, so callers branch on one type.
type APIError struct {
	StatusCode int
	Message    string
	Code       string // provider status, e.g. "INVALID_ARGUMENT"
	Provider   string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("inference [%s]: HTTP %d", e.Provider, e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	return msg + ": " + e.Message
}

// IsRetryable reports whether the request may succeed if sent again:
// rate limiting (429) and server-side failures (5xx).
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ChainError holds one error per generator a chain tried, in order.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "inference chain: nothing tried"
	case 1:
		return "inference chain: " + e.Errors[0].Error()
	}
	return fmt.Sprintf("inference chain: %d generators failed, last: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap exposes every provider error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}
