package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/agent-jobs/internal/queue"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Worker goroutine stopping - context canceled")
			return

		case msg := <-w.jobsChan:
			if err := w.limiter.Wait(ctx); err != nil {
				// shutting down while throttled
				w.nack(msg.delivery, msg.JobID, true)
				return
			}

			// a started job runs to completion even during shutdown
			err := w.processJob(context.WithoutCancel(ctx), msg.JobID)
			if err == nil {
				if ackErr := msg.delivery.Ack(); ackErr != nil {
					logger.Error("Failed to ACK message",
						slog.String("job_id", msg.JobID),
						slog.String("error", ackErr.Error()),
					)
				}
				continue
			}

			requeue := shouldRequeueJob(err)
			logger.Warn("Job message rejected",
				slog.String("job_id", msg.JobID),
				slog.Bool("requeue", requeue),
				slog.String("error", err.Error()),
			)
			w.nack(msg.delivery, msg.JobID, requeue)
		}
	}
}

// shouldRequeueJob puts the message back only for transient failures that
// happened before the job was claimed
func shouldRequeueJob(err error) bool {
	if errors.Is(err, queue.ErrJobAlreadyClaimed) || errors.Is(err, queue.ErrJobNotFound) {
		return false
	}
	return queue.IsRetryable(err)
}
