package queue

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that is not waiting
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in waiting state")

	// ErrJobLost is returned when a worker reports on a job it no longer owns
	ErrJobLost = errors.New("job is no longer active for this worker")

	// ErrInvalidPayload is returned when job payload JSON is malformed
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrScheduleNotFound is returned when a schedule row does not exist
	ErrScheduleNotFound = errors.New("schedule not found")
)

// RetryableError wraps transient errors that should put the delivery back on the broker
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err carries a RetryableError
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
