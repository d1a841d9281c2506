package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rezkam/rihanna/internal/domain"
	"github.com/rezkam/rihanna/internal/retry"
	"github.com/rezkam/rihanna/internal/store/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueue is an in-memory Queue. Lock serves exactly one batch (the
// jobs field) and every batch thereafter is empty, so a dispatchOne-level
// test doesn't spin its poll loop forever; callers cancel ctx once they've
// observed the expected terminal call.
type fakeQueue struct {
	mu              sync.Mutex
	jobs            []domain.Job
	served          bool
	successful      []int64
	failed          []failedCall
	retried         []retriedCall
	lockHadDeadline bool
}

type failedCall struct {
	jobID  int64
	reason string
}

type retriedCall struct {
	jobID int64
	dueAt time.Time
}

func (q *fakeQueue) Checkout(ctx context.Context) (*postgres.Session, error) {
	return &postgres.Session{}, nil
}

func (q *fakeQueue) Lock(ctx context.Context, sess *postgres.Session, n int, excludeIDs []int64) ([]domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := ctx.Deadline(); ok {
		q.lockHadDeadline = true
	}
	if q.served {
		return nil, nil
	}
	q.served = true
	return q.jobs, nil
}

func (q *fakeQueue) MarkSuccessful(ctx context.Context, sess *postgres.Session, job domain.Job) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.successful = append(q.successful, job.ID)
	return 1, nil
}

func (q *fakeQueue) MarkFailed(ctx context.Context, sess *postgres.Session, job domain.Job, when time.Time, reason string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, failedCall{jobID: job.ID, reason: reason})
	return 1, nil
}

func (q *fakeQueue) MarkRetried(ctx context.Context, sess *postgres.Session, job domain.Job, dueAt time.Time) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retried = append(q.retried, retriedCall{jobID: job.ID, dueAt: dueAt})
	return 1, nil
}

type funcHandler struct {
	fn func(ctx context.Context, job domain.Job) error
}

func (h funcHandler) Handle(ctx context.Context, job domain.Job) error { return h.fn(ctx, job) }

type schedulingFuncHandler struct {
	funcHandler
	at time.Time
}

func (h schedulingFuncHandler) RetryAt(reason string, args json.RawMessage, attempts int32) (time.Time, error) {
	return h.at, nil
}

func moduleJob(id int64, module string) domain.Job {
	payload, err := domain.NewModulePayload(module, map[string]int{"n": 1})
	if err != nil {
		panic(err)
	}
	return domain.Job{ID: id, Payload: payload, EnqueuedAt: domain.Now(), Priority: domain.DefaultPriority}
}

func runUntilIdle(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_ = d.Run(ctx)
}

func TestDispatchOne_SuccessMarksSuccessful(t *testing.T) {
	queue := &fakeQueue{jobs: []domain.Job{moduleJob(1, "widget.process")}}
	registry := retry.NewModuleRegistry()
	registry.Register("widget.process", funcHandler{fn: func(ctx context.Context, job domain.Job) error { return nil }})

	d := New(queue, registry, nil, Config{Concurrency: 1, BatchSize: 1, PollInterval: 10 * time.Millisecond})
	runUntilIdle(t, d)

	assert.Equal(t, []int64{1}, queue.successful)
	assert.Empty(t, queue.failed)
	assert.Empty(t, queue.retried)
}

func TestDispatchOne_OpaquePayloadFails(t *testing.T) {
	payload, err := domain.NewOpaquePayload(map[string]int{"a": 1})
	require.NoError(t, err)
	job := domain.Job{ID: 2, Payload: payload, EnqueuedAt: domain.Now()}

	queue := &fakeQueue{jobs: []domain.Job{job}}
	registry := retry.NewModuleRegistry()

	d := New(queue, registry, nil, Config{Concurrency: 1, BatchSize: 1, PollInterval: 10 * time.Millisecond})
	runUntilIdle(t, d)

	require.Len(t, queue.failed, 1)
	assert.Equal(t, int64(2), queue.failed[0].jobID)
}

func TestDispatchOne_UnregisteredModuleFails(t *testing.T) {
	queue := &fakeQueue{jobs: []domain.Job{moduleJob(3, "no.such.module")}}
	registry := retry.NewModuleRegistry()

	d := New(queue, registry, nil, Config{Concurrency: 1, BatchSize: 1, PollInterval: 10 * time.Millisecond})
	runUntilIdle(t, d)

	require.Len(t, queue.failed, 1)
	assert.Equal(t, int64(3), queue.failed[0].jobID)
}

func TestDispatchOne_ErrorWithoutSchedulerFallsBackToFailed(t *testing.T) {
	queue := &fakeQueue{jobs: []domain.Job{moduleJob(4, "widget.process")}}
	registry := retry.NewModuleRegistry()
	registry.Register("widget.process", funcHandler{fn: func(ctx context.Context, job domain.Job) error {
		return errors.New("boom")
	}})

	d := New(queue, registry, nil, Config{Concurrency: 1, BatchSize: 1, PollInterval: 10 * time.Millisecond})
	runUntilIdle(t, d)

	require.Len(t, queue.failed, 1)
	assert.Equal(t, "boom", queue.failed[0].reason)
	assert.Empty(t, queue.retried)
}

func TestDispatchOne_ErrorWithSchedulerMarksRetried(t *testing.T) {
	due := domain.Now().Add(5 * time.Minute)
	queue := &fakeQueue{jobs: []domain.Job{moduleJob(5, "widget.process")}}
	registry := retry.NewModuleRegistry()
	registry.Register("widget.process", schedulingFuncHandler{
		funcHandler: funcHandler{fn: func(ctx context.Context, job domain.Job) error {
			return errors.New("rate limited")
		}},
		at: due,
	})

	d := New(queue, registry, nil, Config{Concurrency: 1, BatchSize: 1, PollInterval: 10 * time.Millisecond})
	runUntilIdle(t, d)

	require.Len(t, queue.retried, 1)
	assert.Equal(t, int64(5), queue.retried[0].jobID)
	assert.True(t, queue.retried[0].dueAt.Equal(due))
	assert.Empty(t, queue.failed)
}

// runUntilFirstLock starts d.Run on a context with no deadline of its own,
// so a Lock call's ctx.Deadline() can only come from OperationTimeout, then
// cancels once the fake Queue has observed at least one Lock call.
func runUntilFirstLock(t *testing.T, d *Dispatcher, queue *fakeQueue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return queue.served
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestOperationTimeout_AppliedToLockCalls(t *testing.T) {
	queue := &fakeQueue{}
	registry := retry.NewModuleRegistry()

	d := New(queue, registry, nil, Config{
		Concurrency:      1,
		BatchSize:        1,
		PollInterval:     10 * time.Millisecond,
		OperationTimeout: 50 * time.Millisecond,
	})
	runUntilFirstLock(t, d, queue)

	assert.True(t, queue.lockHadDeadline, "Lock should have been called with a context carrying the configured OperationTimeout deadline")
}

func TestOperationTimeout_ZeroMeansNoDeadlineAddedByDispatcher(t *testing.T) {
	queue := &fakeQueue{}
	registry := retry.NewModuleRegistry()

	d := New(queue, registry, nil, Config{Concurrency: 1, BatchSize: 1, PollInterval: 10 * time.Millisecond})
	runUntilFirstLock(t, d, queue)

	assert.False(t, queue.lockHadDeadline, "Lock should not gain a deadline the dispatcher didn't add")
}

func TestDispatchOne_PanicRecoveredAndMarkedFailed(t *testing.T) {
	queue := &fakeQueue{jobs: []domain.Job{moduleJob(6, "widget.process")}}
	registry := retry.NewModuleRegistry()
	registry.Register("widget.process", funcHandler{fn: func(ctx context.Context, job domain.Job) error {
		panic("unexpected nil pointer")
	}})

	d := New(queue, registry, nil, Config{Concurrency: 1, BatchSize: 1, PollInterval: 10 * time.Millisecond})
	runUntilIdle(t, d)

	require.Len(t, queue.failed, 1)
	assert.Equal(t, int64(6), queue.failed[0].jobID)
	assert.Contains(t, queue.failed[0].reason, "unexpected nil pointer")
}
