// Package worker consumes job ids from the broker, claims the jobs, runs them
// through the orchestrator and records the outcome. It also drives the queue
// scheduler: due retries, recurring schedules and the maintenance sweep.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/internal/queue"
	"github.com/cuongbtq/agent-jobs/internal/task"
	"github.com/google/uuid"
)

// Executor runs one task and returns the agent's data
type Executor interface {
	Execute(ctx context.Context, t task.Task) (any, error)
}

// Config holds worker configuration
type Config struct {
	WorkerID          string
	Concurrency       int
	PrefetchCount     int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	StallTimeout      time.Duration
}

// Worker represents the background job worker
type Worker struct {
	workerID          string
	queue             *queue.Queue
	executor          Executor
	limiter           Limiter
	logger            *slog.Logger
	metrics           *metrics.Collector
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	pollInterval      time.Duration
	stallTimeout      time.Duration
	jobsChan          chan *jobMessage
	wg                sync.WaitGroup
	stopOnce          sync.Once
	stopChan          chan struct{}
}

type jobMessage struct {
	JobID    string
	delivery queue.Delivery
}

// NewWorker creates a new worker instance. The queue must be enabled.
func NewWorker(cfg *Config, q *queue.Queue, executor Executor, limiter Limiter, logger *slog.Logger, m *metrics.Collector) (*Worker, error) {
	if !q.Enabled() {
		return nil, errors.New("worker requires an enabled job queue")
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = defaultWorkerID()
	}
	if limiter == nil {
		limiter = Unlimited{}
	}

	w := &Worker{
		workerID:          workerID,
		queue:             q,
		executor:          executor,
		limiter:           limiter,
		logger:            logger.With(slog.String("worker_id", workerID)),
		metrics:           m,
		concurrency:       orDefault(cfg.Concurrency, 5),
		prefetchCount:     cfg.PrefetchCount,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: orDefaultDuration(cfg.HeartbeatInterval, 30*time.Second),
		pollInterval:      orDefaultDuration(cfg.PollInterval, time.Second),
		stallTimeout:      orDefaultDuration(cfg.StallTimeout, 5*time.Minute),
		stopChan:          make(chan struct{}),
	}
	if w.prefetchCount <= 0 {
		w.prefetchCount = w.concurrency
	}
	w.jobsChan = make(chan *jobMessage, w.concurrency)

	return w, nil
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.New().String()[:8])
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// ID returns the worker identity recorded on claimed jobs
func (w *Worker) ID() string {
	return w.workerID
}

// Start begins processing jobs and blocks until ctx is canceled or Stop is
// called, then waits for in-flight jobs to finish.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Duration("poll_interval", w.pollInterval),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := w.queue.RegisterMaintenance(ctx); err != nil {
		return fmt.Errorf("failed to register maintenance schedule: %w", err)
	}

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.startMessageDispatcher(ctx, deliveries)
	}()
	go func() {
		defer w.wg.Done()
		w.runScheduler(ctx)
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("Worker context canceled, stopping...")
	case <-w.stopChan:
		w.logger.Info("Worker stop requested, stopping...")
	}

	cancel()
	w.wg.Wait()
	w.logger.Info("Worker stopped")
	return nil
}

// Stop asks a running worker to stop; Start returns once in-flight jobs finish
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
	})
}
