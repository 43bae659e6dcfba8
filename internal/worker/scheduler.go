package worker

import (
	"context"
	"log/slog"
	"time"
)

// runScheduler recovers stalled jobs, promotes due retries, fires due
// schedules and refreshes the queue gauges every poll interval
func (w *Worker) runScheduler(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("Scheduler started",
		slog.Duration("poll_interval", w.pollInterval),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	// a crashed worker's job waits at most stall_timeout plus one poll
	if n, err := w.queue.RecoverStalled(ctx, w.stallTimeout); err != nil && ctx.Err() == nil {
		w.logger.Error("Failed to recover stalled jobs",
			slog.String("error", err.Error()),
		)
	} else if n > 0 {
		w.logger.Warn("Recovered stalled jobs", slog.Int("count", n))
	}

	if _, err := w.queue.PromoteDue(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("Failed to promote due jobs",
			slog.String("error", err.Error()),
		)
	}

	if _, err := w.queue.FireDueSchedules(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("Failed to fire due schedules",
			slog.String("error", err.Error()),
		)
	}

	if err := w.queue.RefreshGauges(ctx); err != nil && ctx.Err() == nil {
		w.logger.Warn("Failed to refresh queue gauges",
			slog.String("error", err.Error()),
		)
	}
}

// SweepResult is the result stored on a maintenance-sweep job
type SweepResult struct {
	Recovered int            `json:"recovered"`
	Trimmed   int64          `json:"trimmed"`
	Counts    map[string]int `json:"counts"`
}

// sweep recovers stalled jobs, trims retention and refreshes the queue gauges
func (w *Worker) sweep(ctx context.Context) (*SweepResult, error) {
	recovered, err := w.queue.RecoverStalled(ctx, w.stallTimeout)
	if err != nil {
		return nil, err
	}

	trimmed, err := w.queue.Trim(ctx)
	if err != nil {
		return nil, err
	}

	if err := w.queue.RefreshGauges(ctx); err != nil {
		return nil, err
	}

	counts, err := w.queue.Counts(ctx)
	if err != nil {
		return nil, err
	}
	out := &SweepResult{Recovered: recovered, Trimmed: trimmed, Counts: make(map[string]int, len(counts))}
	for state, n := range counts {
		out.Counts[string(state)] = n
	}

	w.logger.Info("Maintenance sweep finished",
		slog.Int("recovered", recovered),
		slog.Int64("trimmed", trimmed),
	)
	return out, nil
}
