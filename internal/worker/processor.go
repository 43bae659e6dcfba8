package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/orchestrator"
	"github.com/cuongbtq/agent-jobs/internal/queue"
	"github.com/cuongbtq/agent-jobs/internal/task"
)

// Job outcomes recorded in worker_jobs_total
const (
	OutcomeCompleted = "completed"
	OutcomeRetrying  = "retrying"
	OutcomeFailed    = "failed"
)

// processJob claims and runs one job. A nil return acks the message; the job
// row carries any retry. An error is returned only when the job could not be
// claimed, wrapped as retryable when the failure was transient.
func (w *Worker) processJob(ctx context.Context, jobID string) error {
	job, err := w.queue.Claim(ctx, jobID, w.workerID)
	if err != nil {
		if errors.Is(err, queue.ErrJobAlreadyClaimed) || errors.Is(err, queue.ErrJobNotFound) {
			// duplicate delivery or purged job
			w.logger.Warn("Job not claimable, skipping",
				slog.String("job_id", jobID),
				slog.String("reason", err.Error()),
			)
			return nil
		}
		w.logger.Error("Failed to claim job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return queue.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	jobCtx, cancel := ctx, context.CancelFunc(func() {})
	if w.jobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
	}
	defer cancel()

	heartbeatDone := make(chan struct{})
	go w.sendJobHeartbeat(jobCtx, job.ID, heartbeatDone)
	defer close(heartbeatDone)

	if err := w.queue.Progress(ctx, job.ID, w.workerID, queue.ProgressExecuting); err != nil {
		w.logger.Warn("Failed to update job progress",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	start := time.Now()
	result, err := w.executeJob(jobCtx, job)
	duration := time.Since(start)

	// outcome writes must land even when the job context expired
	writeCtx := context.WithoutCancel(ctx)

	if err != nil {
		w.failJob(writeCtx, job, err, duration)
		return nil
	}

	if err := w.queue.Complete(writeCtx, job, w.workerID, result); err != nil {
		w.logger.Error("Failed to record job completion",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	w.metrics.RecordJob(string(job.Name), OutcomeCompleted)
	w.logger.Info("Job completed",
		slog.String("job_id", job.ID),
		slog.String("task_type", string(job.Name)),
		slog.Int("attempt", job.AttemptsMade),
		slog.Int64("duration_ms", duration.Milliseconds()),
	)
	return nil
}

func (w *Worker) failJob(ctx context.Context, job *queue.Job, cause error, duration time.Duration) {
	retryable := isRetryableFailure(cause)

	retryAt, err := w.queue.Fail(ctx, job, w.workerID, cause, retryable)
	if err != nil {
		w.logger.Error("Failed to record job failure",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
			slog.String("cause", cause.Error()),
		)
		return
	}

	outcome := OutcomeFailed
	attrs := []any{
		slog.String("job_id", job.ID),
		slog.String("task_type", string(job.Name)),
		slog.Int("attempt", job.AttemptsMade),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.Int64("duration_ms", duration.Milliseconds()),
		slog.String("error", cause.Error()),
	}
	if !retryAt.IsZero() {
		outcome = OutcomeRetrying
		attrs = append(attrs, slog.Time("retry_at", retryAt))
	}

	w.metrics.RecordJob(string(job.Name), outcome)
	w.logger.Error("Job failed", attrs...)
}

// isRetryableFailure is false for failures another attempt cannot fix
func isRetryableFailure(err error) bool {
	return !errors.Is(err, orchestrator.ErrUnknownTaskType) &&
		!errors.Is(err, orchestrator.ErrInvalidPayload) &&
		!errors.Is(err, task.ErrUnknownType)
}

// executeJob runs the job: housekeeping is handled here, everything else by the orchestrator
func (w *Worker) executeJob(ctx context.Context, job *queue.Job) (any, error) {
	w.logger.Debug("Executing job",
		slog.String("job_id", job.ID),
		slog.String("task_type", string(job.Name)),
	)

	if job.Name == task.TypeMaintenanceSweep {
		return w.sweep(ctx)
	}

	data, err := w.executor.Execute(ctx, job.Task())
	if err == nil && ctx.Err() != nil {
		return nil, fmt.Errorf("job execution canceled: %w", ctx.Err())
	}
	return data, err
}

// sendJobHeartbeat periodically updates the job's heartbeat timestamp
func (w *Worker) sendJobHeartbeat(ctx context.Context, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := w.queue.Heartbeat(ctx, jobID, w.workerID); err != nil {
				w.logger.Warn("Failed to update job heartbeat",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
				if errors.Is(err, queue.ErrJobLost) {
					return
				}
			}
		}
	}
}
