package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/agent/legal"
	"github.com/cuongbtq/agent-jobs/internal/agent/marketplace"
	"github.com/cuongbtq/agent-jobs/internal/api/auth"
	"github.com/cuongbtq/agent-jobs/internal/api/dto"
	"github.com/cuongbtq/agent-jobs/internal/api/handler"
	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/internal/orchestrator"
	"github.com/cuongbtq/agent-jobs/internal/queue"
	"github.com/cuongbtq/agent-jobs/internal/queue/queuetest"
	"github.com/cuongbtq/agent-jobs/internal/queue/storage"
	"github.com/cuongbtq/agent-jobs/internal/store"
	"github.com/cuongbtq/agent-jobs/internal/task"
	"github.com/cuongbtq/agent-jobs/internal/worker"
	"github.com/cuongbtq/agent-jobs/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

func init() {
	gin.SetMode(gin.TestMode)
}

// countingDispatcher records how often the orchestrator was reached
type countingDispatcher struct {
	next  handler.Dispatcher
	calls atomic.Int32
}

func (d *countingDispatcher) Dispatch(ctx context.Context, t task.Task) task.Result {
	d.calls.Add(1)
	return d.next.Dispatch(ctx, t)
}

type fixture struct {
	router     *gin.Engine
	db         *sqlx.DB
	queue      *queue.Queue
	broker     *queuetest.Broker
	orch       *orchestrator.Orchestrator
	dispatcher *countingDispatcher
	verifier   *auth.Verifier
	metrics    *metrics.Collector
}

func newFixture(t *testing.T, withQueue bool) *fixture {
	t.Helper()

	log := logger.Discard()
	db := queuetest.NewDB(t)
	st := store.New(db)
	m := metrics.NewCollector("agent-api")
	orch := orchestrator.New(legal.NewService(st, nil, log), marketplace.NewService(st, nil, log), log, m)

	f := &fixture{
		db:         db,
		orch:       orch,
		dispatcher: &countingDispatcher{next: orch},
		verifier:   auth.NewVerifier("test-secret", "agent-jobs"),
		metrics:    m,
	}

	if withQueue {
		f.broker = queuetest.NewBroker()
		f.queue = queue.New(storage.NewStorage(db, log), f.broker, queue.Config{BackoffBase: 20 * time.Millisecond}, log, m)
		require.NotNil(t, f.queue)
	}

	f.router = SetupRouter(&handler.Dependencies{
		Logger:       log,
		Orchestrator: f.dispatcher,
		Queue:        f.queue,
		Products:     st,
		Verifier:     f.verifier,
		Metrics:      m,
	})

	seed(t, db)
	return f
}

func seed(t *testing.T, db *sqlx.DB) {
	t.Helper()

	now := time.Now().UnixMilli()
	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO legal_templates (id, title, category, jurisdiction, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			[]any{1, "Standard Waiver", "waiver", "US", "Release of liability.\nAssumption of risk.\nGoverning law: Delaware.", now}},
		{`INSERT INTO products (id, seller_id, title, description, category, price_cents, stock, image_count, views, sales, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			[]any{10, "seller-1", "Walnut desk", "Solid walnut standing desk with cable tray", "furniture", 45000, 3, 4, 500, 20, now}},
		{`INSERT INTO products (id, seller_id, title, description, category, price_cents, stock, image_count, views, sales, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			[]any{11, "seller-2", "Oak chair", "Oak dining chair", "furniture", 9000, 40, 1, 80, 2, now}},
	}
	for _, s := range stmts {
		_, err := db.Exec(db.Rebind(s.query), s.args...)
		require.NoError(t, err)
	}
}

func (f *fixture) token(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	token, err := f.verifier.Issue(userID, role, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) startWorker(t *testing.T) {
	t.Helper()

	w, err := worker.NewWorker(&worker.Config{
		WorkerID:          "w-api-test",
		Concurrency:       2,
		HeartbeatInterval: 20 * time.Millisecond,
		PollInterval:      20 * time.Millisecond,
		StallTimeout:      time.Minute,
	}, f.queue, f.orch, nil, logger.Discard(), f.metrics)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("worker did not stop")
		}
	})
}

type envelope struct {
	Success     bool                 `json:"success"`
	Error       string               `json:"error"`
	Message     string               `json:"message"`
	JobID       string               `json:"jobId"`
	Review      json.RawMessage      `json:"review"`
	Comparison  *legal.Comparison    `json:"comparison"`
	Job         *dto.JobStatus       `json:"job"`
	Details     []handler.FieldError `json:"details"`
	Queued      bool                 `json:"queued"`
	Jobs        json.RawMessage      `json:"jobs"`
	NextCursor  string               `json:"next_cursor"`
	Counts      map[string]int       `json:"counts"`
	Assessment  json.RawMessage      `json:"assessment"`
	Recommended json.RawMessage      `json:"recommendations"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func (f *fixture) waitForState(t *testing.T, path, token string, state queue.State) *dto.JobStatus {
	t.Helper()

	var job *dto.JobStatus
	require.Eventually(t, func() bool {
		w := f.do(t, http.MethodGet, path, token, nil)
		if w.Code != http.StatusOK {
			return false
		}
		job = decode(t, w).Job
		return job != nil && job.State == state
	}, waitFor, 20*time.Millisecond)
	return job
}

var waiverRequest = map[string]any{"content": "Sample waiver text", "category": "waiver"}

func withAsync(body map[string]any) map[string]any {
	out := map[string]any{"async": true}
	for k, v := range body {
		out[k] = v
	}
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"agent-api-service","queue":false}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "agent_api_http_requests_total")
}

func TestUnauthenticated(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(t, http.MethodPost, "/api/legal/agents/review-document", "", waiverRequest)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, f.dispatcher.calls.Load())
}

func TestReviewDocument_Sync(t *testing.T) {
	f := newFixture(t, false)
	token := f.token(t, "u-1", auth.RoleUser)

	w := f.do(t, http.MethodPost, "/api/legal/agents/review-document", token, waiverRequest)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := decode(t, w)
	assert.True(t, env.Success)

	var review legal.Review
	require.NoError(t, json.Unmarshal(env.Review, &review))
	assert.Equal(t, "waiver", review.Category)
	assert.GreaterOrEqual(t, review.OverallScore, 0)
	assert.LessOrEqual(t, review.OverallScore, 100)
	assert.GreaterOrEqual(t, review.RiskScore, 0)
	assert.LessOrEqual(t, review.RiskScore, 100)
}

func TestReviewDocument_AsyncMatchesSync(t *testing.T) {
	f := newFixture(t, true)
	f.startWorker(t)
	token := f.token(t, "u-1", auth.RoleUser)

	w := f.do(t, http.MethodPost, "/api/legal/agents/review-document", token, waiverRequest)
	require.Equal(t, http.StatusOK, w.Code)
	syncReview := decode(t, w).Review

	w = f.do(t, http.MethodPost, "/api/legal/agents/review-document", token, withAsync(waiverRequest))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := decode(t, w)
	assert.True(t, env.Success)
	require.NotEmpty(t, env.JobID)
	assert.Equal(t, "review-document job queued", env.Message)

	job := f.waitForState(t, "/api/legal/agents/job-status/"+env.JobID, token, queue.StateCompleted)
	assert.Equal(t, env.JobID, job.ID)
	assert.Equal(t, task.TypeReviewDocument, job.Name)
	assert.Equal(t, queue.ProgressDone, job.Progress)
	assert.Equal(t, 1, job.AttemptsMade)
	assert.NotNil(t, job.ProcessedOn)
	assert.NotNil(t, job.FinishedOn)
	assert.JSONEq(t, string(syncReview), string(job.Result))
}

func TestCompareDocuments_SameTemplate(t *testing.T) {
	f := newFixture(t, false)
	token := f.token(t, "u-1", auth.RoleUser)

	w := f.do(t, http.MethodPost, "/api/legal/agents/compare-documents", token, map[string]any{"templateIdA": 1, "templateIdB": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := decode(t, w)
	require.NotNil(t, env.Comparison)
	assert.Empty(t, env.Comparison.Differences)
	assert.Equal(t, 1.0, env.Comparison.Similarity)
	assert.Contains(t, env.Comparison.Recommendation, "near-identical")
}

func TestSyncBusinessFailureIs500(t *testing.T) {
	f := newFixture(t, false)
	token := f.token(t, "u-1", auth.RoleUser)

	w := f.do(t, http.MethodPost, "/api/legal/agents/compare-documents", token, map[string]any{"templateIdA": 1, "templateIdB": 99})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	env := decode(t, w)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "template B")
}

func TestValidationFailure(t *testing.T) {
	f := newFixture(t, true)
	token := f.token(t, "u-1", auth.RoleUser)

	tests := []struct {
		name  string
		path  string
		body  any
		field string
		rule  string
	}{
		{"missing template ids", "/api/legal/agents/compare-documents", map[string]any{"templateIdA": 1}, "templateIdB", "required"},
		{"review without content", "/api/legal/agents/review-document", map[string]any{"category": "waiver"}, "content", "required_without_all"},
		{"one party", "/api/legal/agents/assist-contract", map[string]any{"contractType": "nda", "parties": []string{"Acme"}}, "parties", "min"},
		{"bad priority", "/api/legal/agents/suggest-clauses", map[string]any{"category": "nda", "priority": "urgent"}, "priority", "oneof"},
		{"malformed body", "/api/legal/agents/negotiate", "not an object", "body", "json"},
		{"bad path id", "/api/marketplace-agents/analyze-reviews/abc", nil, "productId", "gt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tt.path, token, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			env := decode(t, w)
			assert.False(t, env.Success)
			assert.Equal(t, "validation failed", env.Error)
			require.NotEmpty(t, env.Details)
			assert.Equal(t, tt.field, env.Details[0].Field)
			assert.Equal(t, tt.rule, env.Details[0].Rule)
		})
	}

	assert.Zero(t, f.dispatcher.calls.Load())
	assert.Empty(t, f.broker.Published())
}

func TestAsyncWithoutQueue(t *testing.T) {
	f := newFixture(t, false)
	token := f.token(t, "u-1", auth.RoleUser)

	w := f.do(t, http.MethodPost, "/api/legal/agents/review-document", token, withAsync(waiverRequest))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, decode(t, w).Success)
	assert.Zero(t, f.dispatcher.calls.Load())

	w = f.do(t, http.MethodGet, "/api/queue/jobs", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthorizationPrecedence(t *testing.T) {
	f := newFixture(t, true)
	user := f.token(t, "u-1", auth.RoleUser)
	seller := f.token(t, "seller-1", auth.RoleSeller)

	tests := []struct {
		name  string
		token string
		path  string
		body  any
	}{
		{"fraud check needs admin", seller, "/api/marketplace-agents/fraud-check", map[string]any{"userId": "u-1", "amount": 10}},
		{"price of another seller's product", seller, "/api/marketplace-agents/optimize-price", map[string]any{"productId": 11, "async": true}},
		{"qa review of another seller's product", seller, "/api/marketplace-agents/qa-review/11", nil},
		{"inventory of another seller", seller, "/api/marketplace-agents/inventory-check/seller-2", map[string]any{"async": true}},
		{"inventory of own seller with foreign product", seller, "/api/marketplace-agents/inventory-check/seller-1", map[string]any{"productId": 11}},
		{"recommendations for another user", user, "/api/marketplace-agents/recommendations", map[string]any{"userId": "u-2"}},
		{"purchase webhook needs admin", user, "/api/marketplace-agents/webhooks/purchase", map[string]any{"purchaseId": 1, "buyerId": "u-1", "sellerId": "seller-1", "productId": 10}},
		{"document webhook needs admin", user, "/api/legal/agents/webhooks/document", map[string]any{"instanceId": 1, "ownerId": "u-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tt.path, tt.token, tt.body)
			require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
			assert.JSONEq(t, `{"message":"Unauthorized"}`, w.Body.String())
		})
	}

	assert.Zero(t, f.dispatcher.calls.Load())
	assert.Empty(t, f.broker.Published())

	w := f.do(t, http.MethodGet, "/api/queue/stats", seller, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOwnerAndAdminAccess(t *testing.T) {
	f := newFixture(t, false)
	seller := f.token(t, "seller-1", auth.RoleSeller)
	admin := f.token(t, "admin-1", auth.RoleAdmin)

	w := f.do(t, http.MethodPost, "/api/marketplace-agents/optimize-price", seller, map[string]any{"productId": 10})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/marketplace-agents/optimize-price", admin, map[string]any{"productId": 11})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/marketplace-agents/optimize-price", seller, map[string]any{"productId": 404})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/marketplace-agents/inventory-check/seller-1", seller, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/marketplace-agents/fraud-check", admin, map[string]any{"userId": "u-1", "amount": 25, "accountAgeDays": 400})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode(t, w).Assessment)

	w = f.do(t, http.MethodPost, "/api/marketplace-agents/recommendations", seller, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode(t, w).Recommended)

	assert.Equal(t, int32(5), f.dispatcher.calls.Load())
}

func TestJobStatus(t *testing.T) {
	f := newFixture(t, true)
	owner := f.token(t, "u-1", auth.RoleUser)
	other := f.token(t, "u-2", auth.RoleUser)
	admin := f.token(t, "admin-1", auth.RoleAdmin)

	w := f.do(t, http.MethodPost, "/api/legal/agents/review-document", owner, withAsync(waiverRequest))
	require.Equal(t, http.StatusOK, w.Code)
	jobID := decode(t, w).JobID
	path := "/api/legal/agents/job-status/" + jobID

	w = f.do(t, http.MethodGet, path, owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	job := decode(t, w).Job
	require.NotNil(t, job)
	assert.Equal(t, queue.StateWaiting, job.State)
	assert.Nil(t, job.ProcessedOn)
	assert.Nil(t, job.FinishedOn)

	w = f.do(t, http.MethodGet, path, other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, path, admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	notFound := []string{
		"/api/legal/agents/job-status/3f8a6f4e-6a53-4c55-9c71-2b7f0d7f6a10",
		"/api/legal/agents/job-status/not-a-uuid",
		"/api/marketplace-agents/job-status/" + jobID,
	}
	for _, p := range notFound {
		w = f.do(t, http.MethodGet, p, owner, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, p)
	}
}

func TestJobStatus_QueueDisabled(t *testing.T) {
	f := newFixture(t, false)
	token := f.token(t, "u-1", auth.RoleUser)

	w := f.do(t, http.MethodGet, "/api/legal/agents/job-status/3f8a6f4e-6a53-4c55-9c71-2b7f0d7f6a10", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPurchaseWebhook(t *testing.T) {
	body := map[string]any{"purchaseId": 7, "buyerId": "u-1", "sellerId": "seller-1", "productId": 10}

	t.Run("queues background checks", func(t *testing.T) {
		f := newFixture(t, true)
		admin := f.token(t, "admin-1", auth.RoleAdmin)

		w := f.do(t, http.MethodPost, "/api/marketplace-agents/webhooks/purchase", admin, body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		env := decode(t, w)
		assert.True(t, env.Queued)

		var jobs map[string]string
		require.NoError(t, json.Unmarshal(env.Jobs, &jobs))
		assert.Len(t, jobs, 3)

		published := f.broker.Published()
		require.Len(t, published, 3)
		assert.Equal(t, task.TypeFraudCheck, published[0].Type)
		assert.Equal(t, task.PriorityHigh, published[0].Priority)
		assert.Equal(t, task.TypeInventoryCheck, published[1].Type)
		assert.Equal(t, task.TypePriceOptimize, published[2].Type)
		assert.Zero(t, f.dispatcher.calls.Load())
	})

	t.Run("fraud assessment stays admin only", func(t *testing.T) {
		f := newFixture(t, true)
		admin := f.token(t, "admin-1", auth.RoleAdmin)
		buyer := f.token(t, "u-1", auth.RoleUser)

		w := f.do(t, http.MethodPost, "/api/marketplace-agents/webhooks/purchase", admin, body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var jobs map[string]string
		require.NoError(t, json.Unmarshal(decode(t, w).Jobs, &jobs))
		fraudPath := "/api/marketplace-agents/job-status/" + jobs["fraudCheck"]

		w = f.do(t, http.MethodGet, "/api/queue/jobs?job_type=fraud-check", buyer, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var listed dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
		assert.Empty(t, listed.Jobs)

		w = f.do(t, http.MethodGet, fraudPath, buyer, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = f.do(t, http.MethodGet, fraudPath, admin, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, task.TypeFraudCheck, decode(t, w).Job.Name)
	})

	t.Run("no-op without a queue", func(t *testing.T) {
		f := newFixture(t, false)
		admin := f.token(t, "admin-1", auth.RoleAdmin)

		w := f.do(t, http.MethodPost, "/api/marketplace-agents/webhooks/purchase", admin, body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.False(t, decode(t, w).Queued)
	})
}

func TestListJobsAndStats(t *testing.T) {
	f := newFixture(t, true)
	owner := f.token(t, "u-1", auth.RoleUser)
	other := f.token(t, "u-2", auth.RoleUser)
	admin := f.token(t, "admin-1", auth.RoleAdmin)

	for i := 0; i < 3; i++ {
		w := f.do(t, http.MethodPost, "/api/legal/agents/review-document", owner, withAsync(waiverRequest))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := f.do(t, http.MethodPost, "/api/legal/agents/suggest-clauses", other, map[string]any{"category": "nda", "async": true})
	require.Equal(t, http.StatusOK, w.Code)

	list := func(token, query string) ([]dto.JobDTO, string) {
		w := f.do(t, http.MethodGet, "/api/queue/jobs"+query, token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp.Jobs, resp.NextCursor
	}

	jobs, next := list(owner, "?page_size=2")
	require.Len(t, jobs, 2)
	require.NotEmpty(t, next)
	for _, j := range jobs {
		assert.Equal(t, "u-1", j.UserID)
	}

	jobs, next = list(owner, "?page_size=2&cursor="+next)
	assert.Len(t, jobs, 1)
	assert.Empty(t, next)

	jobs, _ = list(owner, "?user_id=u-2")
	assert.Len(t, jobs, 3, "non-admin filters are scoped to the caller")

	jobs, _ = list(admin, "?user_id=u-2")
	require.Len(t, jobs, 1)
	assert.Equal(t, task.TypeSuggestClauses, jobs[0].Name)

	jobs, _ = list(admin, "?job_type=review-document&state=waiting")
	assert.Len(t, jobs, 3)

	w = f.do(t, http.MethodGet, "/api/queue/jobs?job_type=nope", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/queue/jobs?cursor=bm90LWEtY3Vyc29y", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/queue/stats", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	counts := decode(t, w).Counts
	assert.Equal(t, 4, counts["waiting"])
	assert.Equal(t, 0, counts["delayed"])
}
