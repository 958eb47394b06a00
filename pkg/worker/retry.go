package worker

import (
	"math/rand"
	"time"
)

// RetryPolicy is an exponential-with-jitter, capped-attempts policy
// (spec.md §4.2 Failure & retry). Actor.handleTrap uses only MaxAttempts:
// once the actor's retryable-trap count exceeds it, the worker moves to
// PhaseFailed and every subsequent invocation is rejected with
// PreviousInvocationFailed. Delay computes a backoff, but nothing in this
// package calls it.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches warren's own task-restart backoff shape:
// bounded exponential backoff with full jitter, capped attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 200 * time.Millisecond, MaxDelay: 30 * time.Second}
}

// Delay computes the backoff for the given 1-indexed attempt number.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt-1)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}
