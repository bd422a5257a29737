package imagefetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for profile image fetching.
var (
	ErrFetch       = errors.New("profile image fetch failed")
	ErrCircuitOpen = errors.New("profile image fetch circuit open")
	ErrInvalidURL  = errors.New("invalid profile image url")

	// errCallerDone marks a download abandoned because the caller's ctx
	// ended. It says nothing about the host.
	errCallerDone = errors.New("fetch abandoned by caller")
)

// HTTPError is a non-200 upstream response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// transient reports whether err is worth retrying: network failures, 429
// and 5xx responses. Caller cancellation is never transient.
func transient(err error) bool {
	if errors.Is(err, errTooLarge) || errors.Is(err, ErrInvalidURL) {
		return false
	}
	if errors.Is(err, errCallerDone) || errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	return true
}
