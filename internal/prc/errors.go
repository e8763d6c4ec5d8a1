package prc

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// APIError is a non-2xx response from the PRC API.
type APIError struct {
	StatusCode int
	Message    string
	// RetryAfter is the server-supplied backoff hint, zero if absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("prc api: status %d: %s", e.StatusCode, e.Message)
}

// authMarkers are message fragments that identify an authentication
// failure even when no usable status code is attached.
var authMarkers = []string{
	"unauthorized",
	"forbidden",
	"invalid token",
	"invalid authorization",
}

// IsAuthError reports whether err represents an authentication failure:
// an HTTP 401/403, or an error message carrying a known auth marker.
// Auth failures are terminal for a tenant; they are never retried.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range authMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// RetryAfterHint extracts the server-supplied retry delay from err,
// if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	return 0, false
}
