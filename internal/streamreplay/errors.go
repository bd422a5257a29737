package streamreplay

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrUnhealthy  = errors.New("service is not healthy")
	ErrNoInput    = errors.New("no observations to replay")
	ErrBadRequest = errors.New("observation rejected")

	errMissingKey = errors.New("missing key")
)

// statusError is an unexpected HTTP status from the service.
type statusError struct {
	Path   string
	Status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Path, e.Status)
}

// retryable reports whether a failed submission may succeed later.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.Status == 429 || se.Status >= 500
	}
	return !errors.Is(err, ErrBadRequest)
}
