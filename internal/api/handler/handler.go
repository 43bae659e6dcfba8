package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/agent-jobs/internal/api/auth"
	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/internal/model"
	"github.com/cuongbtq/agent-jobs/internal/queue"
	"github.com/cuongbtq/agent-jobs/internal/task"
)

// Dispatcher runs a task in the calling goroutine
type Dispatcher interface {
	Dispatch(ctx context.Context, t task.Task) task.Result
}

// ProductReader resolves product ownership for seller routes
type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
}

// Dependencies holds all dependencies needed by handlers.
// Queue may be nil, which disables async execution.
type Dependencies struct {
	Logger       *slog.Logger
	Orchestrator Dispatcher
	Queue        *queue.Queue
	Products     ProductReader
	Verifier     *auth.Verifier
	Metrics      *metrics.Collector
}

// AgentHandler serves the legal and marketplace agent routes
type AgentHandler struct {
	logger     *slog.Logger
	dispatcher Dispatcher
	queue      *queue.Queue
	products   ProductReader
}

// NewAgentHandler creates a new AgentHandler instance
func NewAgentHandler(deps *Dependencies) *AgentHandler {
	return &AgentHandler{
		logger:     deps.Logger,
		dispatcher: deps.Orchestrator,
		queue:      deps.Queue,
		products:   deps.Products,
	}
}

// QueueHandler serves job status and the queue admin routes
type QueueHandler struct {
	logger *slog.Logger
	queue  *queue.Queue
}

// NewQueueHandler creates a new QueueHandler instance
func NewQueueHandler(deps *Dependencies) *QueueHandler {
	return &QueueHandler{
		logger: deps.Logger,
		queue:  deps.Queue,
	}
}
