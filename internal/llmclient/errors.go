package llmclient

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitedError reports that the provider rejected a request for quota
// reasons. It is surfaced to callers rather than absorbed by the transport
// retry loop so the recovery policy above can decide how long to wait.
type RateLimitedError struct {
	Provider   string
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s API rate limited (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// IsRateLimited reports whether err is, or wraps, a rate limit rejection.
func IsRateLimited(err error) bool {
	var rle *RateLimitedError
	return errors.As(err, &rle)
}
