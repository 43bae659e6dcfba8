package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cuongbtq/agent-jobs/internal/agent/legal"
	"github.com/cuongbtq/agent-jobs/internal/agent/marketplace"
	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/internal/task"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLegal panics on any method without an override
type stubLegal struct {
	LegalAgents
	review func(ctx context.Context, in legal.ReviewInput) (*legal.Review, error)
}

func (s *stubLegal) ReviewDocument(ctx context.Context, in legal.ReviewInput) (*legal.Review, error) {
	return s.review(ctx, in)
}

type stubMarket struct {
	MarketplaceAgents
	calls atomic.Int32

	fraud        *marketplace.FraudAssessment
	sentimentErr error
	fakePanic    bool
}

func (s *stubMarket) FraudCheck(ctx context.Context, in marketplace.FraudInput) (*marketplace.FraudAssessment, error) {
	s.calls.Add(1)
	return s.fraud, nil
}

func (s *stubMarket) AnalyzeSentiment(ctx context.Context, in marketplace.ReviewsInput) (*marketplace.Sentiment, error) {
	s.calls.Add(1)
	return &marketplace.Sentiment{Score: 1, Label: marketplace.LabelPositive, PositiveTerms: []string{"great"}, NegativeTerms: []string{}}, nil
}

func (s *stubMarket) ProductSentiment(ctx context.Context, in marketplace.ProductInput) (*marketplace.ProductSentiment, error) {
	s.calls.Add(1)
	if s.sentimentErr != nil {
		return nil, s.sentimentErr
	}
	return &marketplace.ProductSentiment{ProductID: in.ProductID, ReviewCount: 2}, nil
}

func (s *stubMarket) DetectFakeReviews(ctx context.Context, in marketplace.ProductInput) (*marketplace.Authenticity, error) {
	s.calls.Add(1)
	if s.fakePanic {
		panic("authenticity model crashed")
	}
	return &marketplace.Authenticity{ProductID: in.ProductID, AuthenticityScore: 100}, nil
}

func (s *stubMarket) SummarizeReviews(ctx context.Context, in marketplace.ProductInput) (*marketplace.ReviewSummary, error) {
	s.calls.Add(1)
	return &marketplace.ReviewSummary{ProductID: in.ProductID, Summary: "ok"}, nil
}

func newTestOrchestrator(l LegalAgents, m MarketplaceAgents) (*Orchestrator, *bytes.Buffer, *metrics.Collector) {
	out := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := metrics.NewCollector("test")
	return New(l, m, logger, c), out, c
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func mustTask(t *testing.T, typ task.Type, data any) task.Task {
	t.Helper()
	tk, err := task.New(typ, task.PriorityMedium, data)
	require.NoError(t, err)
	return tk
}

func TestDispatch_Success(t *testing.T) {
	want := &legal.Review{OverallScore: 70, RiskScore: 30, Category: "waiver"}
	l := &stubLegal{review: func(ctx context.Context, in legal.ReviewInput) (*legal.Review, error) {
		assert.Equal(t, "Sample waiver text", in.Content)
		return want, nil
	}}
	o, logs, c := newTestOrchestrator(l, &stubMarket{})

	res := o.Dispatch(context.Background(), mustTask(t, task.TypeReviewDocument, map[string]any{"content": "Sample waiver text"}))

	assert.True(t, res.Success)
	assert.Equal(t, want, res.Data)
	assert.Empty(t, res.Error)
	assert.False(t, res.Timestamp.IsZero())

	lines := logLines(t, logs)
	require.Len(t, lines, 1)
	assert.Equal(t, "review-document", lines[0]["task_type"])
	assert.Equal(t, OutcomeSuccess, lines[0]["outcome"])
	assert.Contains(t, lines[0], "duration_ms")

	n, err := testutil.GatherAndCount(c.Registry(), "agent_dispatch_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDispatch_UnknownType(t *testing.T) {
	o, _, _ := newTestOrchestrator(&stubLegal{}, &stubMarket{})

	tk := task.Task{Type: "summon-dragon", Data: json.RawMessage(`{}`)}

	assert.NotPanics(t, func() {
		res := o.Dispatch(context.Background(), tk)
		assert.False(t, res.Success)
		assert.Equal(t, "unknown task type: summon-dragon", res.Error)
	})

	_, err := o.Execute(context.Background(), tk)
	assert.ErrorIs(t, err, ErrUnknownTaskType)
	assert.False(t, o.Supports(tk.Type))
	assert.False(t, o.Supports(task.TypeMaintenanceSweep))
}

func TestDispatch_SupportsEveryAgentType(t *testing.T) {
	o, _, _ := newTestOrchestrator(&stubLegal{}, &stubMarket{})

	for _, typ := range task.Types() {
		if typ.Domain() == task.DomainSystem {
			continue
		}
		assert.True(t, o.Supports(typ), string(typ))
	}
}

func TestDispatch_InvalidPayload(t *testing.T) {
	o, _, _ := newTestOrchestrator(&stubLegal{}, &stubMarket{})

	_, err := o.Execute(context.Background(), task.Task{
		Type: task.TypeCompareDocuments,
		Data: json.RawMessage(`{"templateIdA":"one"}`),
	})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDispatch_BusinessError(t *testing.T) {
	l := &stubLegal{review: func(ctx context.Context, in legal.ReviewInput) (*legal.Review, error) {
		return nil, legal.ErrContentRequired
	}}
	o, logs, _ := newTestOrchestrator(l, &stubMarket{})

	res := o.Dispatch(context.Background(), mustTask(t, task.TypeReviewDocument, map[string]any{}))
	assert.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.Equal(t, legal.ErrContentRequired.Error(), res.Error)

	lines := logLines(t, logs)
	require.Len(t, lines, 1)
	assert.Equal(t, "ERROR", lines[0]["level"])
	assert.Equal(t, OutcomeError, lines[0]["outcome"])
}

func TestDispatch_RecoversPanic(t *testing.T) {
	// AssistContract has no override, so the embedded nil interface panics
	o, logs, _ := newTestOrchestrator(&stubLegal{}, &stubMarket{})

	var res task.Result
	assert.NotPanics(t, func() {
		res = o.Dispatch(context.Background(), mustTask(t, task.TypeAssistContract, map[string]any{"contractType": "nda"}))
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "agent assist-contract panicked")

	lines := logLines(t, logs)
	require.Len(t, lines, 1)
	assert.Equal(t, OutcomePanic, lines[0]["outcome"])
}

func TestDispatch_FraudBlockWarns(t *testing.T) {
	m := &stubMarket{fraud: &marketplace.FraudAssessment{RiskScore: 92, Action: marketplace.ActionBlock, RiskLevel: "high"}}
	o, logs, _ := newTestOrchestrator(&stubLegal{}, m)

	res := o.Dispatch(context.Background(), mustTask(t, task.TypeFraudCheck, marketplace.FraudInput{UserID: "u-1"}))
	require.True(t, res.Success)

	lines := logLines(t, logs)
	require.Len(t, lines, 2)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, float64(92), lines[0]["risk_score"])

	m.fraud = &marketplace.FraudAssessment{RiskScore: 10, Action: marketplace.ActionAllow}
	logs.Reset()
	o.Dispatch(context.Background(), mustTask(t, task.TypeFraudCheck, marketplace.FraudInput{UserID: "u-1"}))
	assert.Len(t, logLines(t, logs), 1)
}

func TestDispatch_AnalyzeReviews(t *testing.T) {
	t.Run("product fans out", func(t *testing.T) {
		m := &stubMarket{}
		o, _, _ := newTestOrchestrator(&stubLegal{}, m)

		res := o.Dispatch(context.Background(), mustTask(t, task.TypeAnalyzeReviews, marketplace.ReviewsInput{ProductID: 7}))
		require.True(t, res.Success, res.Error)

		analysis, ok := res.Data.(*marketplace.ReviewAnalysis)
		require.True(t, ok)
		assert.Equal(t, int64(7), analysis.ProductID)
		assert.Equal(t, 2, analysis.Sentiment.ReviewCount)
		assert.Equal(t, 100, analysis.Authenticity.AuthenticityScore)
		assert.Equal(t, "ok", analysis.Summary.Summary)
		assert.Equal(t, int32(3), m.calls.Load())
	})

	t.Run("panic in a sub-call fails the task", func(t *testing.T) {
		m := &stubMarket{fakePanic: true}
		o, logs, _ := newTestOrchestrator(&stubLegal{}, m)

		var res task.Result
		assert.NotPanics(t, func() {
			res = o.Dispatch(context.Background(), mustTask(t, task.TypeAnalyzeReviews, marketplace.ReviewsInput{ProductID: 7}))
		})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "review authenticity panicked: authenticity model crashed")

		lines := logLines(t, logs)
		require.Len(t, lines, 1)
		assert.Equal(t, OutcomeError, lines[0]["outcome"])
	})

	t.Run("text only", func(t *testing.T) {
		m := &stubMarket{}
		o, _, _ := newTestOrchestrator(&stubLegal{}, m)

		res := o.Dispatch(context.Background(), mustTask(t, task.TypeAnalyzeReviews, marketplace.ReviewsInput{ReviewText: "great"}))
		require.True(t, res.Success)
		_, ok := res.Data.(*marketplace.Sentiment)
		assert.True(t, ok)
		assert.Equal(t, int32(1), m.calls.Load())
	})

	t.Run("neither", func(t *testing.T) {
		o, _, _ := newTestOrchestrator(&stubLegal{}, &stubMarket{})

		res := o.Dispatch(context.Background(), mustTask(t, task.TypeAnalyzeReviews, map[string]any{}))
		assert.False(t, res.Success)
		assert.Equal(t, marketplace.ErrReviewInputRequired.Error(), res.Error)
	})

	t.Run("sub-call failure fails the composite", func(t *testing.T) {
		m := &stubMarket{sentimentErr: errors.New("database is locked")}
		o, _, _ := newTestOrchestrator(&stubLegal{}, m)

		res := o.Dispatch(context.Background(), mustTask(t, task.TypeAnalyzeReviews, marketplace.ReviewsInput{ProductID: 7}))
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "database is locked")
	})
}
