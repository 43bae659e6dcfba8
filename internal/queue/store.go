package queue

import "context"

// Store persists jobs and schedules. Implementations must make Claim,
// Requeue and AdvanceSchedule compare-and-set so concurrent workers and
// schedulers never both win.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Claim(ctx context.Context, id, workerID string, progress int, now int64) (*Job, error)
	Heartbeat(ctx context.Context, id, workerID string, now int64) error
	UpdateProgress(ctx context.Context, id, workerID string, progress int) error
	Complete(ctx context.Context, id, workerID, result string, now int64) error
	Fail(ctx context.Context, id, workerID, reason string, retryAt, now int64) error
	Defer(ctx context.Context, id string, availableAt int64) error
	DueRetries(ctx context.Context, now int64, limit int) ([]Job, error)
	Requeue(ctx context.Context, id string, expectedAvailableAt int64) (bool, error)
	Stalled(ctx context.Context, heartbeatBefore int64, limit int) ([]Job, error)
	Trim(ctx context.Context, state State, keep int) (int64, error)
	List(ctx context.Context, filter Filter) ([]Job, error)
	Counts(ctx context.Context) (map[State]int, error)

	EnsureSchedule(ctx context.Context, s *Schedule) error
	DueSchedules(ctx context.Context, now int64) ([]Schedule, error)
	AdvanceSchedule(ctx context.Context, name string, expectedNext, next, lastRun int64) (bool, error)
}

// Delivery is one broker message awaiting acknowledgement
type Delivery interface {
	Body() []byte
	Ack() error
	Nack(requeue bool) error
}

// Broker moves job ids from producers to workers
type Broker interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context, consumer string, prefetch int) (<-chan Delivery, error)
	Close() error
}
