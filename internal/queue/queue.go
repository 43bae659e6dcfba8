// Package queue is the durable job queue: job rows in SQL are the source of
// truth, the broker carries job ids to workers, and retries and recurring
// schedules are driven from the database so they survive restarts.
//
// A nil *Queue is the disabled queue. Every method on it is a silent no-op
// returning zero values, so callers never branch on availability.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/internal/task"
	"github.com/google/uuid"
)

// Config holds queue policy
type Config struct {
	Attempts        int
	BackoffBase     time.Duration
	KeepCompleted   int
	KeepFailed      int
	MaintenanceCron string
	BatchSize       int
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = DefaultRetryPolicy.Attempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultRetryPolicy.Base
	}
	if c.KeepCompleted <= 0 {
		c.KeepCompleted = 100
	}
	if c.KeepFailed <= 0 {
		c.KeepFailed = 50
	}
	if c.MaintenanceCron == "" {
		c.MaintenanceCron = MaintenanceCron
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	return c
}

// Queue enqueues jobs and applies the retry, retention and schedule policy
type Queue struct {
	store   Store
	broker  Broker
	config  Config
	retry   RetryPolicy
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// New returns nil, the disabled queue, when broker is nil.
func New(store Store, broker Broker, config Config, logger *slog.Logger, m *metrics.Collector) *Queue {
	if broker == nil || store == nil {
		logger.Warn("Job queue disabled, background and async work will be skipped")
		return nil
	}

	config = config.withDefaults()
	return &Queue{
		store:   store,
		broker:  broker,
		config:  config,
		retry:   RetryPolicy{Attempts: config.Attempts, Base: config.BackoffBase},
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Enabled reports whether jobs are actually persisted and delivered
func (q *Queue) Enabled() bool {
	return q != nil
}

// Broker returns the underlying broker, nil when disabled
func (q *Queue) Broker() Broker {
	if q == nil {
		return nil
	}
	return q.broker
}

// RetryPolicy returns the active retry policy
func (q *Queue) RetryPolicy() RetryPolicy {
	if q == nil {
		return RetryPolicy{}
	}
	return q.retry
}

// EnqueueRequest describes a job to create
type EnqueueRequest struct {
	Type     task.Type
	Priority task.Priority
	Payload  any
	UserID   string
}

// Enqueue persists a waiting job and publishes its id. It returns as soon as
// the job is durable; a failed publish is retried by PromoteDue.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if q == nil {
		return "", nil
	}

	if !req.Type.Valid() {
		return "", fmt.Errorf("%w: %s", task.ErrUnknownType, req.Type)
	}
	priority, err := task.ParsePriority(string(req.Priority))
	if err != nil {
		return "", err
	}

	payload, err := encodePayload(req.Payload)
	if err != nil {
		return "", err
	}

	job := &Job{
		ID:          uuid.New().String(),
		Name:        req.Type,
		Priority:    priority,
		Payload:     payload,
		State:       StateWaiting,
		MaxAttempts: q.retry.Attempts,
		UserID:      req.UserID,
		CreatedAt:   q.now().UnixMilli(),
	}

	if err := q.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.metrics.RecordEnqueue(string(job.Name), string(job.Priority))
	q.logger.Info("Job enqueued",
		slog.String("job_id", job.ID),
		slog.String("task_type", string(job.Name)),
		slog.String("priority", string(job.Priority)),
	)

	q.publish(ctx, job)

	return job.ID, nil
}

func encodePayload(payload any) (string, error) {
	switch p := payload.(type) {
	case nil:
		return "{}", nil
	case json.RawMessage:
		if !json.Valid(p) {
			return "", ErrInvalidPayload
		}
		return string(p), nil
	case []byte:
		if !json.Valid(p) {
			return "", ErrInvalidPayload
		}
		return string(p), nil
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return string(raw), nil
	}
}

// publish sends the job id to the broker, deferring a retry on failure
func (q *Queue) publish(ctx context.Context, job *Job) {
	err := q.broker.Publish(ctx, Message{JobID: job.ID, Type: job.Name, Priority: job.Priority})
	if err == nil {
		return
	}

	retryAt := q.now().Add(q.retry.Backoff(1)).UnixMilli()
	q.logger.Warn("Failed to publish job, deferring",
		slog.String("job_id", job.ID),
		slog.Time("retry_at", time.UnixMilli(retryAt)),
		slog.Any("error", err),
	)
	if err := q.store.Defer(context.WithoutCancel(ctx), job.ID, retryAt); err != nil {
		q.logger.Error("Failed to defer unpublished job",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}
}

// Status returns the job, or nil when the queue is disabled
func (q *Queue) Status(ctx context.Context, id string) (*Job, error) {
	if q == nil {
		return nil, nil
	}
	return q.store.Get(ctx, id)
}

// List returns a page of jobs, newest first, with one extra row when more exist
func (q *Queue) List(ctx context.Context, filter Filter) ([]Job, error) {
	if q == nil {
		return nil, nil
	}
	return q.store.List(ctx, filter)
}

// Counts returns retained jobs per state, with pending retries reported as delayed
func (q *Queue) Counts(ctx context.Context) (map[State]int, error) {
	if q == nil {
		return map[State]int{}, nil
	}
	return q.store.Counts(ctx)
}

// Claim moves a waiting job to active for workerID
func (q *Queue) Claim(ctx context.Context, id, workerID string) (*Job, error) {
	if q == nil {
		return nil, nil
	}
	return q.store.Claim(ctx, id, workerID, ProgressClaimed, q.now().UnixMilli())
}

// Progress records a coarse progress checkpoint
func (q *Queue) Progress(ctx context.Context, id, workerID string, progress int) error {
	if q == nil {
		return nil
	}
	return q.store.UpdateProgress(ctx, id, workerID, progress)
}

// Heartbeat marks an active job as still owned by workerID
func (q *Queue) Heartbeat(ctx context.Context, id, workerID string) error {
	if q == nil {
		return nil
	}
	return q.store.Heartbeat(ctx, id, workerID, q.now().UnixMilli())
}

// Complete stores the result and finishes the job
func (q *Queue) Complete(ctx context.Context, job *Job, workerID string, data any) error {
	if q == nil {
		return nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode job result: %w", err)
	}
	return q.store.Complete(ctx, job.ID, workerID, string(raw), q.now().UnixMilli())
}

// Fail records the failure. When retryable and attempts remain, a retry is
// scheduled after the backoff and its time returned; otherwise the failure is
// terminal and the zero time is returned.
func (q *Queue) Fail(ctx context.Context, job *Job, workerID string, cause error, retryable bool) (time.Time, error) {
	if q == nil {
		return time.Time{}, nil
	}

	now := q.now()
	var retryAt time.Time
	if retryable && q.retry.ShouldRetry(job.AttemptsMade, job.MaxAttempts) {
		retryAt = now.Add(q.retry.Backoff(job.AttemptsMade))
	}

	var at int64
	if !retryAt.IsZero() {
		at = retryAt.UnixMilli()
	}
	if err := q.store.Fail(ctx, job.ID, workerID, cause.Error(), at, now.UnixMilli()); err != nil {
		return time.Time{}, err
	}
	return retryAt, nil
}

// PromoteDue moves failed jobs whose retry time has come back to waiting,
// and republishes jobs whose publish was deferred.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	if q == nil {
		return 0, nil
	}

	due, err := q.store.DueRetries(ctx, q.now().UnixMilli(), q.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load due retries: %w", err)
	}

	promoted := 0
	for i := range due {
		job := &due[i]
		won, err := q.store.Requeue(ctx, job.ID, job.AvailableAt)
		if err != nil {
			return promoted, fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
		}
		if !won {
			continue
		}

		promoted++
		q.logger.Info("Job requeued for retry",
			slog.String("job_id", job.ID),
			slog.String("task_type", string(job.Name)),
			slog.Int("attempts_made", job.AttemptsMade),
		)
		q.publish(ctx, job)
	}
	return promoted, nil
}

// RecoverStalled fails active jobs whose heartbeat is older than stallTimeout,
// letting the retry policy decide whether they run again.
func (q *Queue) RecoverStalled(ctx context.Context, stallTimeout time.Duration) (int, error) {
	if q == nil {
		return 0, nil
	}

	cutoff := q.now().Add(-stallTimeout).UnixMilli()
	stalled, err := q.store.Stalled(ctx, cutoff, q.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load stalled jobs: %w", err)
	}

	recovered := 0
	for i := range stalled {
		job := &stalled[i]
		cause := fmt.Errorf("job stalled: no heartbeat from %s since %s",
			job.WorkerID, time.UnixMilli(job.HeartbeatAt).UTC().Format(time.RFC3339))

		retryAt, err := q.Fail(ctx, job, job.WorkerID, cause, true)
		if errors.Is(err, ErrJobLost) {
			continue
		}
		if err != nil {
			return recovered, err
		}

		recovered++
		q.logger.Warn("Recovered stalled job",
			slog.String("job_id", job.ID),
			slog.String("worker_id", job.WorkerID),
			slog.Bool("will_retry", !retryAt.IsZero()),
		)
	}
	return recovered, nil
}

// Trim purges finished jobs beyond the retention counts
func (q *Queue) Trim(ctx context.Context) (int64, error) {
	if q == nil {
		return 0, nil
	}

	completed, err := q.store.Trim(ctx, StateCompleted, q.config.KeepCompleted)
	if err != nil {
		return 0, fmt.Errorf("failed to trim completed jobs: %w", err)
	}
	failed, err := q.store.Trim(ctx, StateFailed, q.config.KeepFailed)
	if err != nil {
		return completed, fmt.Errorf("failed to trim failed jobs: %w", err)
	}

	if completed+failed > 0 {
		q.logger.Info("Trimmed finished jobs",
			slog.Int64("completed", completed),
			slog.Int64("failed", failed),
		)
	}
	return completed + failed, nil
}

// RefreshGauges publishes per-state counts to the queue depth gauges
func (q *Queue) RefreshGauges(ctx context.Context) error {
	if q == nil {
		return nil
	}

	counts, err := q.store.Counts(ctx)
	if err != nil {
		return err
	}

	gauges := map[string]int{
		string(StateWaiting):   0,
		string(StateActive):    0,
		string(StateCompleted): 0,
		string(StateFailed):    0,
		string(StateDelayed):   0,
	}
	for state, n := range counts {
		gauges[string(state)] = n
	}
	q.metrics.SetQueueDepth(gauges)
	return nil
}
