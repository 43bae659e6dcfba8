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
	"github.com/cuongbtq/agent-jobs/internal/api/auth"
	"github.com/cuongbtq/agent-jobs/internal/api/handler"
	"github.com/cuongbtq/agent-jobs/internal/api/router"
	"github.com/cuongbtq/agent-jobs/internal/config"
	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/internal/orchestrator"
	"github.com/cuongbtq/agent-jobs/internal/queue"
	"github.com/cuongbtq/agent-jobs/internal/queue/storage"
	"github.com/cuongbtq/agent-jobs/internal/store"
	"github.com/cuongbtq/agent-jobs/migrations"
	"github.com/cuongbtq/agent-jobs/shared/database"
	"github.com/cuongbtq/agent-jobs/shared/logger"
	"github.com/cuongbtq/agent-jobs/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging, cfg.App.Name)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initDatabase(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector("agent-api")
	}

	// The queue stays disabled without a broker; async requests then answer 503.
	var broker queue.Broker
	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled() {
		rabbitClient, err = rabbitmq.NewClient(cfg.RabbitMQ.ClientConfig(), appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		broker = queue.NewRabbitBroker(rabbitClient)
		appLogger.Info("RabbitMQ connection established")
	} else {
		appLogger.Warn("RabbitMQ is not configured, async execution disabled")
	}

	jobQueue := queue.New(
		storage.NewStorage(dbClient.GetDB(), appLogger.Logger),
		broker,
		cfg.Queue.QueueConfig(),
		appLogger.Logger,
		collector,
	)

	repo := store.New(dbClient.GetDB())
	orch := initOrchestrator(&cfg.LLM, repo, appLogger.Logger, collector)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:       appLogger.Logger,
		Orchestrator: orch,
		Queue:        jobQueue,
		Products:     repo,
		Verifier:     auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Metrics:      collector,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		slog.Bool("queue_enabled", jobQueue.Enabled()),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-errChan:
		appLogger.Error("Server failed", slog.Any("error", err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
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

// initOrchestrator wires the agent services. Without an API key the agents
// run on their heuristics alone.
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
