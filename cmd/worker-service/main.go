package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/agent/legal"
	"github.com/cuongbtq/agent-jobs/internal/agent/llm"
	"github.com/cuongbtq/agent-jobs/internal/agent/marketplace"
	"github.com/cuongbtq/agent-jobs/internal/config"
	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/internal/orchestrator"
	"github.com/cuongbtq/agent-jobs/internal/queue"
	"github.com/cuongbtq/agent-jobs/internal/queue/storage"
	"github.com/cuongbtq/agent-jobs/internal/store"
	"github.com/cuongbtq/agent-jobs/internal/worker"
	"github.com/cuongbtq/agent-jobs/migrations"
	"github.com/cuongbtq/agent-jobs/shared/database"
	"github.com/cuongbtq/agent-jobs/shared/logger"
	"github.com/cuongbtq/agent-jobs/shared/rabbitmq"
	"github.com/cuongbtq/agent-jobs/shared/redis"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging, cfg.App.Name)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initDatabase(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQ.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector("agent-worker")
	}

	jobQueue := queue.New(
		storage.NewStorage(dbClient.GetDB(), appLogger.Logger),
		queue.NewRabbitBroker(rabbitClient),
		cfg.Queue.QueueConfig(),
		appLogger.Logger,
		collector,
	)

	limiter, rdb, err := initLimiter(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize limiter: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	orch := initOrchestrator(&cfg.LLM, store.New(dbClient.GetDB()), appLogger.Logger, collector)

	workerInstance, err := worker.NewWorker(&worker.Config{
		WorkerID:          cfg.Worker.ID,
		Concurrency:       cfg.Worker.Concurrency,
		PrefetchCount:     cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		PollInterval:      cfg.Worker.PollInterval,
		StallTimeout:      cfg.Worker.StallTimeout,
	}, jobQueue, orch, limiter, appLogger.Logger, collector)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	var metricsServer *http.Server
	if collector != nil {
		metricsServer = startMetricsServer(&cfg.Metrics, collector, appLogger.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully",
		slog.String("worker_id", workerInstance.ID()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// In-flight jobs get the shutdown timeout to finish; anything still
	// running afterwards is recovered as stalled by another worker.
	workerInstance.Stop()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Metrics server shutdown failed", slog.Any("error", err))
		}
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig, service string) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      service,
	})
}

// initDatabase opens the SQL client and applies the embedded schema when asked to
func initDatabase(cfg *config.DatabaseConfig, logger *slog.Logger) (*database.Client, error) {
	client, err := database.NewClient(cfg.ClientConfig(), logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := migrations.Apply(ctx, client.GetDB(), client.Driver()); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		logger.Info("Database migrations applied", slog.String("driver", client.Driver()))
	}

	return client, nil
}

// initLimiter picks the claim limiter: shared through Redis when an address
// is configured, in-process when only a limit is set, otherwise none.
func initLimiter(cfg *config.Config, logger *slog.Logger) (worker.Limiter, *goredis.Client, error) {
	if cfg.Limiter.Limit <= 0 {
		return nil, nil, nil
	}

	if cfg.Redis.Addr == "" {
		logger.Info("Using in-process rate limiter",
			slog.Int("limit", cfg.Limiter.Limit),
			slog.Duration("window", cfg.Limiter.Window),
		)
		return worker.NewLocalLimiter(cfg.Limiter.Limit, cfg.Limiter.Window), nil, nil
	}

	rdb, err := redis.NewClient(cfg.Redis.ClientConfig(), logger)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Using Redis rate limiter",
		slog.String("addr", cfg.Redis.Addr),
		slog.Int("limit", cfg.Limiter.Limit),
		slog.Duration("window", cfg.Limiter.Window),
	)
	return worker.NewRedisLimiter(rdb, cfg.Limiter.KeyPrefix, cfg.Limiter.Limit, cfg.Limiter.Window, logger), rdb, nil
}

// initOrchestrator wires the agent services the worker executes jobs with
func initOrchestrator(cfg *config.LLMConfig, repo *store.Store, logger *slog.Logger, m *metrics.Collector) *orchestrator.Orchestrator {
	var completer llm.Completer
	if client := llm.NewAnthropicClient(cfg.ClientConfig()); client != nil {
		completer = client
	} else {
		logger.Warn("LLM API key not configured, agents use heuristics only")
	}

	return orchestrator.New(
		legal.NewService(repo, completer, logger),
		marketplace.NewService(repo, completer, logger),
		logger,
		m,
	)
}

// startMetricsServer exposes the Prometheus registry on its own port
func startMetricsServer(cfg *config.MetricsConfig, collector *metrics.Collector, logger *slog.Logger) *http.Server {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, collector.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting metrics server", slog.String("address", srv.Addr), slog.String("path", path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	return srv
}
