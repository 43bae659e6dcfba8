package queue

import "time"

// RetryPolicy is a fixed attempt cap with exponential backoff
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
}

// DefaultRetryPolicy is three attempts, doubling from one second
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Base: time.Second}

// Backoff returns the delay before the attempt following the given one: Base * 2^(attempt-1)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// keep the shift in range
	if attempt > 31 {
		attempt = 31
	}
	return p.Base << (attempt - 1)
}

// ShouldRetry reports whether a job that has made attemptsMade attempts may run again
func (p RetryPolicy) ShouldRetry(attemptsMade, maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = p.Attempts
	}
	return attemptsMade < maxAttempts
}
