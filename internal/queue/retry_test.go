package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{Attempts: 3, Base: time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}

	assert.Positive(t, p.Backoff(1000))
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := DefaultRetryPolicy

	assert.True(t, p.ShouldRetry(1, 3))
	assert.True(t, p.ShouldRetry(2, 3))
	assert.False(t, p.ShouldRetry(3, 3))
	assert.False(t, p.ShouldRetry(3, 0))
	assert.True(t, p.ShouldRetry(1, 0))
}

func TestRetryableError(t *testing.T) {
	base := errors.New("connection reset")
	err := NewRetryableError(base)

	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "retryable error: connection reset", err.Error())
	assert.False(t, IsRetryable(base))
}
