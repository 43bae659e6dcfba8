package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/metrics"
	"github.com/cuongbtq/agent-jobs/internal/queue"
	"github.com/cuongbtq/agent-jobs/internal/queue/queuetest"
	"github.com/cuongbtq/agent-jobs/internal/queue/storage"
	"github.com/cuongbtq/agent-jobs/internal/task"
	"github.com/cuongbtq/agent-jobs/shared/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 1, 10, 2, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	queue   *queue.Queue
	store   *storage.Storage
	broker  *queuetest.Broker
	clock   *clock
	metrics *metrics.Collector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:   queuetest.NewStore(t),
		broker:  queuetest.NewBroker(),
		clock:   newClock(),
		metrics: metrics.NewCollector("test"),
	}
	f.queue = queue.New(f.store, f.broker, queue.Config{}, logger.Discard(), f.metrics)
	require.NotNil(t, f.queue)
	queue.SetClock(f.queue, f.clock.Now)
	return f
}

func TestNew_DisabledWithoutBroker(t *testing.T) {
	q := queue.New(queuetest.NewStore(t), nil, queue.Config{}, logger.Discard(), nil)
	require.Nil(t, q)

	ctx := context.Background()
	assert.False(t, q.Enabled())

	id, err := q.Enqueue(ctx, queue.EnqueueRequest{Type: task.TypeFraudCheck})
	require.NoError(t, err)
	assert.Empty(t, id)

	job, err := q.Status(ctx, "anything")
	require.NoError(t, err)
	assert.Nil(t, job)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)

	n, err := q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, q.RegisterMaintenance(ctx))
	fired, err := q.FireDueSchedules(ctx)
	require.NoError(t, err)
	assert.Zero(t, fired)

	for _, enqueue := range []func() (string, error){
		func() (string, error) { return q.QueueFraudCheck(ctx, 1, "u1") },
		func() (string, error) { return q.QueueInventoryCheck(ctx, "s1") },
		func() (string, error) { return q.QueuePriceOptimization(ctx, 1, "s1") },
		func() (string, error) { return q.QueueDocumentReview(ctx, 1, "u1") },
	} {
		id, err := enqueue()
		require.NoError(t, err)
		assert.Empty(t, id)
	}
}

func TestQueue_Enqueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.queue.Enqueue(ctx, queue.EnqueueRequest{
		Type:     task.TypeFraudCheck,
		Priority: task.PriorityHigh,
		Payload:  map[string]any{"userId": "u1", "amount": 1500},
		UserID:   "u1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := f.queue.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, queue.StateWaiting, job.State)
	assert.Equal(t, task.TypeFraudCheck, job.Name)
	assert.Equal(t, task.PriorityHigh, job.Priority)
	assert.Equal(t, "u1", job.UserID)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.JSONEq(t, `{"userId":"u1","amount":1500}`, job.Payload)
	assert.Equal(t, f.clock.Now().UnixMilli(), job.CreatedAt)

	published := f.broker.Published()
	require.Len(t, published, 1)
	assert.Equal(t, queue.Message{JobID: id, Type: task.TypeFraudCheck, Priority: task.PriorityHigh}, published[0])

	n, err := testutil.GatherAndCount(f.metrics.Registry(), "queue_jobs_enqueued_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQueue_FraudCheckOwnedBySystem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.queue.QueueFraudCheck(ctx, 7, "u-1")
	require.NoError(t, err)

	job, err := f.queue.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, queue.SystemUser, job.UserID)
	assert.JSONEq(t, `{"purchaseId":7,"userId":"u-1"}`, job.Payload)
}

func TestQueue_EnqueueValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, queue.EnqueueRequest{Type: "mine-bitcoin"})
	assert.ErrorIs(t, err, task.ErrUnknownType)

	_, err = f.queue.Enqueue(ctx, queue.EnqueueRequest{Type: task.TypeRecommend, Priority: "urgent"})
	assert.ErrorIs(t, err, task.ErrUnknownPriority)

	_, err = f.queue.Enqueue(ctx, queue.EnqueueRequest{Type: task.TypeRecommend, Payload: []byte("{nope")})
	assert.ErrorIs(t, err, queue.ErrInvalidPayload)

	assert.Empty(t, f.broker.Published())
}

func TestQueue_PublishFailureIsDeferred(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.broker.SetFailing(true)
	id, err := f.queue.Enqueue(ctx, queue.EnqueueRequest{Type: task.TypeInventoryCheck})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := f.queue.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, queue.StateWaiting, job.State)
	assert.Equal(t, f.clock.Now().Add(time.Second).UnixMilli(), job.AvailableAt)

	f.broker.SetFailing(false)
	n, err := f.queue.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "not due yet")

	f.clock.Advance(time.Second)
	n, err = f.queue.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err = f.queue.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, queue.StateWaiting, job.State)
	assert.Zero(t, job.AvailableAt)
	require.Len(t, f.broker.Published(), 1)
	assert.Equal(t, id, f.broker.Published()[0].JobID)
}

func TestQueue_RetryUntilExhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cause := errors.New("upstream timeout")

	id, err := f.queue.Enqueue(ctx, queue.EnqueueRequest{Type: task.TypePriceOptimize, Payload: map[string]any{"productId": 7}})
	require.NoError(t, err)

	var delays []time.Duration
	for attempt := 1; attempt <= 3; attempt++ {
		job, err := f.queue.Claim(ctx, id, "w-1")
		require.NoError(t, err, "attempt %d", attempt)
		assert.Equal(t, attempt, job.AttemptsMade)
		assert.Equal(t, queue.StateActive, job.State)
		assert.Equal(t, queue.ProgressClaimed, job.Progress)

		retryAt, err := f.queue.Fail(ctx, job, "w-1", cause, true)
		require.NoError(t, err)

		if attempt == 3 {
			assert.True(t, retryAt.IsZero(), "last attempt must be terminal")
			break
		}
		require.False(t, retryAt.IsZero())
		delay := retryAt.Sub(f.clock.Now())
		delays = append(delays, delay)

		failed, err := f.queue.Status(ctx, id)
		require.NoError(t, err)
		assert.True(t, failed.RetryPending())
		assert.Equal(t, "upstream timeout", failed.FailedReason)

		f.clock.Advance(delay)
		n, err := f.queue.PromoteDue(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}

	require.Len(t, delays, 2)
	assert.Equal(t, time.Second, delays[0])
	assert.GreaterOrEqual(t, delays[1], 2*delays[0])

	job, err := f.queue.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, queue.StateFailed, job.State)
	assert.True(t, job.Terminal())
	assert.Equal(t, 3, job.AttemptsMade)

	counts, err := f.queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[queue.State]int{queue.StateFailed: 1}, counts)
}

func TestQueue_NonRetryableFailureIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.queue.Enqueue(ctx, queue.EnqueueRequest{Type: task.TypeRecommend})
	require.NoError(t, err)

	job, err := f.queue.Claim(ctx, id, "w-1")
	require.NoError(t, err)

	retryAt, err := f.queue.Fail(ctx, job, "w-1", errors.New("unknown task type: x"), false)
	require.NoError(t, err)
	assert.True(t, retryAt.IsZero())

	job, err = f.queue.Status(ctx, id)
	require.NoError(t, err)
	assert.True(t, job.Terminal())
	assert.Equal(t, 1, job.AttemptsMade)
}

func TestQueue_ClaimAndOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.queue.Claim(ctx, "missing", "w-1")
	assert.ErrorIs(t, err, queue.ErrJobNotFound)

	id, err := f.queue.Enqueue(ctx, queue.EnqueueRequest{Type: task.TypeQAReview})
	require.NoError(t, err)

	job, err := f.queue.Claim(ctx, id, "w-1")
	require.NoError(t, err)

	_, err = f.queue.Claim(ctx, id, "w-2")
	assert.ErrorIs(t, err, queue.ErrJobAlreadyClaimed)

	assert.ErrorIs(t, f.queue.Heartbeat(ctx, id, "w-2"), queue.ErrJobLost)
	assert.ErrorIs(t, f.queue.Complete(ctx, job, "w-2", map[string]int{"n": 1}), queue.ErrJobLost)

	require.NoError(t, f.queue.Progress(ctx, id, "w-1", queue.ProgressExecuting))
	require.NoError(t, f.queue.Heartbeat(ctx, id, "w-1"))
	require.NoError(t, f.queue.Complete(ctx, job, "w-1", map[string]int{"n": 1}))

	done, err := f.queue.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, queue.StateCompleted, done.State)
	assert.Equal(t, queue.ProgressDone, done.Progress)
	assert.JSONEq(t, `{"n":1}`, string(done.ResultJSON()))
	assert.Equal(t, "w-1", done.WorkerID)
	assert.Equal(t, f.clock.Now().UnixMilli(), done.FinishedOn)
}

func TestQueue_RecoverStalled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale, err := f.queue.Enqueue(ctx, queue.EnqueueRequest{Type: task.TypeAnalyzeReviews})
	require.NoError(t, err)
	_, err = f.queue.Claim(ctx, stale, "w-dead")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)

	fresh, err := f.queue.Enqueue(ctx, queue.EnqueueRequest{Type: task.TypeAnalyzeReviews})
	require.NoError(t, err)
	_, err = f.queue.Claim(ctx, fresh, "w-live")
	require.NoError(t, err)

	n, err := f.queue.RecoverStalled(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := f.queue.Status(ctx, stale)
	require.NoError(t, err)
	assert.True(t, job.RetryPending())
	assert.Contains(t, job.FailedReason, "job stalled")

	job, err = f.queue.Status(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, queue.StateActive, job.State)

	counts, err := f.queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[queue.State]int{queue.StateActive: 1, queue.StateDelayed: 1}, counts)
}

func TestQueue_TrimKeepsNewest(t *testing.T) {
	f := newFixture(t)
	q := queue.New(f.store, f.broker, queue.Config{KeepCompleted: 2, KeepFailed: 1}, logger.Discard(), nil)
	queue.SetClock(q, f.clock.Now)
	ctx := context.Background()

	finish := func(fail bool) string {
		id, err := q.Enqueue(ctx, queue.EnqueueRequest{Type: task.TypeRecommend})
		require.NoError(t, err)
		job, err := q.Claim(ctx, id, "w-1")
		require.NoError(t, err)
		f.clock.Advance(time.Second)
		if fail {
			_, err = q.Fail(ctx, job, "w-1", errors.New("bad input"), false)
		} else {
			err = q.Complete(ctx, job, "w-1", "ok")
		}
		require.NoError(t, err)
		return id
	}

	var completed []string
	for i := 0; i < 4; i++ {
		completed = append(completed, finish(false))
	}
	finish(true)
	lastFailed := finish(true)

	// a failed job still waiting on a retry is never trimmed
	retrying, err := q.Enqueue(ctx, queue.EnqueueRequest{Type: task.TypeRecommend})
	require.NoError(t, err)
	job, err := q.Claim(ctx, retrying, "w-1")
	require.NoError(t, err)
	_, err = q.Fail(ctx, job, "w-1", errors.New("flaky"), true)
	require.NoError(t, err)

	removed, err := q.Trim(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	for i, id := range completed {
		_, err := q.Status(ctx, id)
		if i < 2 {
			assert.ErrorIs(t, err, queue.ErrJobNotFound)
		} else {
			assert.NoError(t, err)
		}
	}
	_, err = q.Status(ctx, lastFailed)
	assert.NoError(t, err)
	_, err = q.Status(ctx, retrying)
	assert.NoError(t, err)
}

func TestQueue_ListPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := f.queue.Enqueue(ctx, queue.EnqueueRequest{Type: task.TypeRecommend, UserID: "u1"})
		require.NoError(t, err)
		ids = append(ids, id)
		f.clock.Advance(time.Millisecond)
	}
	_, err := f.queue.Enqueue(ctx, queue.EnqueueRequest{Type: task.TypeRecommend, UserID: "u2"})
	require.NoError(t, err)

	page, err := f.queue.List(ctx, queue.Filter{UserID: "u1", PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 3, "one extra row signals another page")
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	last := page[1]
	page, err = f.queue.List(ctx, queue.Filter{
		UserID:   "u1",
		PageSize: 2,
		Cursor:   &queue.Cursor{CreatedAt: last.CreatedAt, ID: last.ID},
	})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, ids[2], page[0].ID)

	page, err = f.queue.List(ctx, queue.Filter{State: queue.StateCompleted, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestQueue_Schedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.queue.RegisterMaintenance(ctx))
	require.NoError(t, f.queue.RegisterMaintenance(ctx), "registering twice is a no-op")

	fired, err := f.queue.FireDueSchedules(ctx)
	require.NoError(t, err)
	assert.Zero(t, fired, "02:00 is before the 03:00 run")

	f.clock.Advance(time.Hour)

	other := queue.New(f.store, f.broker, queue.Config{}, logger.Discard(), nil)
	queue.SetClock(other, f.clock.Now)

	fired, err = f.queue.FireDueSchedules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	fired, err = other.FireDueSchedules(ctx)
	require.NoError(t, err)
	assert.Zero(t, fired, "the occurrence was already taken")

	jobs, err := f.queue.List(ctx, queue.Filter{Name: task.TypeMaintenanceSweep, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, queue.SystemUser, jobs[0].UserID)
	assert.Equal(t, task.PriorityLow, jobs[0].Priority)

	due, err := f.store.DueSchedules(ctx, f.clock.Now().Add(23*time.Hour).UnixMilli())
	require.NoError(t, err)
	assert.Empty(t, due)
	due, err = f.store.DueSchedules(ctx, f.clock.Now().Add(24*time.Hour).UnixMilli())
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestQueue_RegisterScheduleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.queue.RegisterSchedule(ctx, queue.ScheduleRequest{Name: "x", Spec: "not cron", Type: task.TypeRecommend})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron spec")

	err = f.queue.RegisterSchedule(ctx, queue.ScheduleRequest{Name: "x", Spec: "@hourly", Type: "bogus"})
	assert.ErrorIs(t, err, task.ErrUnknownType)

	err = f.queue.RegisterSchedule(ctx, queue.ScheduleRequest{Spec: "@hourly", Type: task.TypeRecommend})
	require.Error(t, err)
}

func TestQueue_RefreshGauges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, queue.EnqueueRequest{Type: task.TypeRecommend})
	require.NoError(t, err)

	require.NoError(t, f.queue.RefreshGauges(ctx))
	n, err := testutil.GatherAndCount(f.metrics.Registry(), "queue_jobs")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}
