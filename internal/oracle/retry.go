package oracle

import (
	"errors"
	"math/rand"
	"time"
)

// retryableError wraps an error to indicate it can be retried.
type retryableError struct {
	err error
}

func (r *retryableError) Error() string {
	return r.err.Error()
}

func (r *retryableError) Unwrap() error {
	return r.err
}

// isRetryableError reports whether err (or anything it wraps) is transient.
func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// backoffDelay computes the jittered exponential delay before retry attempt
// n (1-based). Jitter spreads concurrent retries so they don't thunder in
// lockstep against a rate-limited API.
func backoffDelay(attempt int) time.Duration {
	base := defaultBaseBackoff * time.Duration(1<<(attempt-1))
	jitter := time.Duration(rand.Int63n(int64(base)))
	return base + jitter
}
