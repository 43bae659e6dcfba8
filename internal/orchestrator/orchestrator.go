// Package orchestrator maps task types onto agent calls. Every dispatch is
// timed, logged and recorded, and errors or panics become a failed Result.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/agent/legal"
	"github.com/cuongbtq/agent-jobs/internal/agent/marketplace"
	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/internal/task"
)

// Sentinel errors
var (
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrInvalidPayload  = errors.New("invalid task payload")
)

// Dispatch outcomes
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomePanic   = "panic"
)

// LegalAgents is the legal agent surface the dispatch table calls
type LegalAgents interface {
	ReviewDocument(ctx context.Context, in legal.ReviewInput) (*legal.Review, error)
	AssistContract(ctx context.Context, in legal.ContractInput) (*legal.Contract, error)
	CheckCompliance(ctx context.Context, in legal.ComplianceInput) (*legal.Compliance, error)
	CompareDocuments(ctx context.Context, in legal.CompareInput) (*legal.Comparison, error)
	SuggestClauses(ctx context.Context, in legal.SuggestClausesInput) (*legal.Suggestions, error)
	AutoFill(ctx context.Context, in legal.AutoFillInput) (*legal.AutoFillResult, error)
	Negotiate(ctx context.Context, in legal.NegotiateInput) (*legal.Negotiation, error)
	OptimizeWorkflow(ctx context.Context, in legal.WorkflowInput) (*legal.Workflow, error)
}

// MarketplaceAgents is the marketplace agent surface the dispatch table calls
type MarketplaceAgents interface {
	FraudCheck(ctx context.Context, in marketplace.FraudInput) (*marketplace.FraudAssessment, error)
	OptimizePrice(ctx context.Context, in marketplace.PriceInput) (*marketplace.PriceSuggestion, error)
	AnalyzeSentiment(ctx context.Context, in marketplace.ReviewsInput) (*marketplace.Sentiment, error)
	ProductSentiment(ctx context.Context, in marketplace.ProductInput) (*marketplace.ProductSentiment, error)
	DetectFakeReviews(ctx context.Context, in marketplace.ProductInput) (*marketplace.Authenticity, error)
	SummarizeReviews(ctx context.Context, in marketplace.ProductInput) (*marketplace.ReviewSummary, error)
	QAReview(ctx context.Context, in marketplace.ProductInput) (*marketplace.QAReport, error)
	Recommend(ctx context.Context, in marketplace.RecommendInput) (*marketplace.Recommendations, error)
	InventoryCheck(ctx context.Context, in marketplace.InventoryInput) (*marketplace.InventoryReport, error)
}

type handlerFunc func(ctx context.Context, data json.RawMessage) (any, error)

// Orchestrator is stateless beyond its dependencies and safe for concurrent use.
type Orchestrator struct {
	legal    LegalAgents
	market   MarketplaceAgents
	logger   *slog.Logger
	metrics  *metrics.Collector
	handlers map[task.Type]handlerFunc
}

// New builds the dispatch table; m may be nil.
func New(legalAgents LegalAgents, marketAgents MarketplaceAgents, logger *slog.Logger, m *metrics.Collector) *Orchestrator {
	o := &Orchestrator{
		legal:   legalAgents,
		market:  marketAgents,
		logger:  logger,
		metrics: m,
	}

	o.handlers = map[task.Type]handlerFunc{
		task.TypeReviewDocument:   bind(legalAgents.ReviewDocument),
		task.TypeAssistContract:   bind(legalAgents.AssistContract),
		task.TypeCheckCompliance:  bind(legalAgents.CheckCompliance),
		task.TypeCompareDocuments: bind(legalAgents.CompareDocuments),
		task.TypeSuggestClauses:   bind(legalAgents.SuggestClauses),
		task.TypeAutoFill:         bind(legalAgents.AutoFill),
		task.TypeNegotiate:        bind(legalAgents.Negotiate),
		task.TypeOptimizeWorkflow: bind(legalAgents.OptimizeWorkflow),

		task.TypeFraudCheck:     bind(o.fraudCheck),
		task.TypePriceOptimize:  bind(marketAgents.OptimizePrice),
		task.TypeAnalyzeReviews: bind(o.analyzeReviews),
		task.TypeQAReview:       bind(marketAgents.QAReview),
		task.TypeRecommend:      bind(marketAgents.Recommend),
		task.TypeInventoryCheck: bind(marketAgents.InventoryCheck),
	}

	return o
}

// bind adapts a typed agent call to the raw JSON payload of a task
func bind[In, Out any](fn func(context.Context, In) (Out, error)) handlerFunc {
	return func(ctx context.Context, data json.RawMessage) (any, error) {
		var in In
		if len(data) > 0 && string(data) != "null" {
			if err := json.Unmarshal(data, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Supports reports whether t has a dispatch entry
func (o *Orchestrator) Supports(t task.Type) bool {
	_, ok := o.handlers[t]
	return ok
}

// Dispatch runs the task and wraps the outcome in a Result. It never panics.
func (o *Orchestrator) Dispatch(ctx context.Context, t task.Task) task.Result {
	data, err := o.Execute(ctx, t)
	if err != nil {
		return task.Fail(err)
	}
	return task.OK(data)
}

// Execute runs the task and returns the agent's data or error. Panics are
// recovered and returned as errors.
func (o *Orchestrator) Execute(ctx context.Context, t task.Task) (data any, err error) {
	h, ok := o.handlers[t.Type]
	if !ok {
		err = fmt.Errorf("%w: %s", ErrUnknownTaskType, t.Type)
		o.logger.Error("Rejected task with unknown type",
			slog.String("task_type", string(t.Type)),
		)
		o.metrics.RecordDispatch(string(t.Type), OutcomeError, 0)
		return nil, err
	}

	start := time.Now()
	outcome := OutcomeSuccess
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomePanic
			data = nil
			err = fmt.Errorf("agent %s panicked: %v", t.Type, r)
		}

		duration := time.Since(start)
		attrs := []any{
			slog.String("task_type", string(t.Type)),
			slog.String("priority", string(t.Priority)),
			slog.Int64("duration_ms", duration.Milliseconds()),
			slog.String("outcome", outcome),
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			o.logger.Error("Task dispatch failed", attrs...)
		} else {
			o.logger.Info("Task dispatched", attrs...)
		}
		o.metrics.RecordDispatch(string(t.Type), outcome, duration)
	}()

	data, err = h(ctx, t.Data)
	if err != nil {
		outcome = OutcomeError
	}
	return data, err
}

func (o *Orchestrator) fraudCheck(ctx context.Context, in marketplace.FraudInput) (*marketplace.FraudAssessment, error) {
	out, err := o.market.FraudCheck(ctx, in)
	if err != nil {
		return nil, err
	}
	if out.Action == marketplace.ActionBlock {
		o.logger.Warn("Fraud check above block threshold",
			slog.String("user_id", in.UserID),
			slog.Int64("purchase_id", in.PurchaseID),
			slog.Int("risk_score", out.RiskScore),
			slog.Any("factors", out.Factors),
		)
	}
	return out, nil
}
