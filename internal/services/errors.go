package services

import (
	"fmt"
	"net/http"
)

// Custom errors
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

// Detail returns a one-line description of the first invalid field, used by
// responses that have no room for a field map.
func (e *ValidationError) Detail() string {
	for _, key := range []string{"message", "context", "rating", "name", "email", "password"} {
		if msg, ok := e.Fields[key]; ok {
			return msg
		}
	}
	for _, msg := range e.Fields {
		return msg
	}
	return e.Error()
}

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

// Provider error kinds
const (
	ProviderTransport = "transport"
	ProviderTimeout   = "timeout"
	ProviderCanceled  = "canceled"
	ProviderStatus    = "status"
	ProviderAuth      = "auth"
	ProviderRejected  = "rejected"
	ProviderMalformed = "malformed"
)

// ProviderError describes a failed completion call. Only transport failures,
// 429 and 5xx answers are worth retrying.
type ProviderError struct {
	Kind       string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	switch e.Kind {
	case ProviderTimeout:
		return "completion provider timed out"
	case ProviderCanceled:
		return "completion request canceled"
	case ProviderAuth:
		return fmt.Sprintf("completion provider rejected credentials (status %d)", e.StatusCode)
	case ProviderStatus, ProviderRejected:
		return fmt.Sprintf("completion provider returned status %d", e.StatusCode)
	case ProviderMalformed:
		return fmt.Sprintf("malformed completion provider response: %v", e.Err)
	default:
		return fmt.Sprintf("completion provider request failed: %v", e.Err)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ProviderTransport:
		return true
	case ProviderStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}

// providerStatusError classifies a non-success HTTP status from the provider.
func providerStatusError(status int, err error) *ProviderError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &ProviderError{Kind: ProviderAuth, StatusCode: status, Err: err}
	case status == http.StatusTooManyRequests || status >= 500:
		return &ProviderError{Kind: ProviderStatus, StatusCode: status, Err: err}
	default:
		return &ProviderError{Kind: ProviderRejected, StatusCode: status, Err: err}
	}
}
