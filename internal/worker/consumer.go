package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/agent-jobs/internal/queue"
)

// setupConsumer starts consuming from the broker with manual acks
func (w *Worker) setupConsumer(ctx context.Context) (<-chan queue.Delivery, error) {
	deliveries, err := w.queue.Broker().Consume(ctx, w.workerID, w.prefetchCount)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("Broker consumer started",
		slog.Int("prefetch_count", w.prefetchCount),
	)
	return deliveries, nil
}

// startMessageDispatcher hands each delivery's job id to the pool. Bodies
// that do not name a job are dropped without requeue.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan queue.Delivery) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("Broker delivery channel closed")
				return
			}

			msg, err := queue.ParseMessage(delivery.Body())
			if err != nil {
				w.logger.Error("Dropping undeliverable message",
					slog.String("body", string(delivery.Body())),
					slog.Any("error", err),
				)
				w.nack(delivery, msg.JobID, false)
				continue
			}

			select {
			case w.jobsChan <- &jobMessage{JobID: msg.JobID, delivery: delivery}:
			case <-ctx.Done():
				// another worker picks it up
				w.nack(delivery, msg.JobID, true)
				return
			}
		}
	}
}

func (w *Worker) nack(d queue.Delivery, jobID string, requeue bool) {
	if err := d.Nack(requeue); err != nil {
		w.logger.Error("Failed to nack delivery",
			slog.String("job_id", jobID),
			slog.Bool("requeue", requeue),
			slog.Any("error", err),
		)
	}
}
