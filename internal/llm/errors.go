package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrStreamTruncated is returned when the provider body ends before the
// message was closed.
var ErrStreamTruncated = errors.New("provider stream ended before message_stop")

// StatusOverloaded is the provider's "overloaded" status code.
const StatusOverloaded = 529

// ProviderError is an error reported by the provider, either as an HTTP
// status or as an in-stream error event.
type ProviderError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("provider error %d: %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the failure is worth retrying (529 or any 5xx).
func (e *ProviderError) Transient() bool {
	return e.StatusCode == StatusOverloaded ||
		(e.StatusCode >= http.StatusInternalServerError && e.StatusCode < 600)
}

// IsTransient classifies err as retryable. Anything that is not a transient
// provider error or a truncated stream is fatal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStreamTruncated) {
		return true
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Transient()
	}
	return false
}

// StatusForErrorType maps an in-stream error type to the HTTP status the
// provider would have used for it.
func StatusForErrorType(errType string) int {
	switch errType {
	case "overloaded_error":
		return StatusOverloaded
	case "api_error":
		return http.StatusInternalServerError
	case "rate_limit_error":
		return http.StatusTooManyRequests
	case "authentication_error":
		return http.StatusUnauthorized
	case "permission_error":
		return http.StatusForbidden
	case "not_found_error":
		return http.StatusNotFound
	case "request_too_large":
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusBadRequest
	}
}
