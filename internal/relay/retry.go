package relay

import (
	"math/rand/v2"
	"time"
)

// RetryStrategy implements capped exponential backoff with jitter for
// transient delivery failures.
type RetryStrategy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// NewRetryStrategy creates a RetryStrategy with the given attempt ceiling
// and backoff bounds.
func NewRetryStrategy(maxAttempts int, baseDelay, maxDelay time.Duration) *RetryStrategy {
	return &RetryStrategy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
	}
}

// ShouldRetry returns true if a task with the given attempt count has not
// exhausted its retry budget.
func (r *RetryStrategy) ShouldRetry(attempts int) bool {
	return attempts < r.MaxAttempts
}

// NextBackoff returns the delay before the retry following the given
// attempt: base * 2^attempt plus random jitter in [0, base), capped at
// MaxDelay.
func (r *RetryStrategy) NextBackoff(attempt int) time.Duration {
	d := r.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= r.MaxDelay {
			d = r.MaxDelay
			break
		}
	}

	jitter := time.Duration(rand.Float64() * float64(r.BaseDelay))
	d += jitter
	if d > r.MaxDelay {
		d = r.MaxDelay
	}
	return d
}
