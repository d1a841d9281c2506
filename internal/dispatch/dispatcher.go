package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/rezkam/rihanna/internal/domain"
	"github.com/rezkam/rihanna/internal/retry"
	"github.com/rezkam/rihanna/internal/store/postgres"
	"golang.org/x/sync/errgroup"
)

// Queue is the subset of *postgres.Store the dispatcher depends on,
// narrowed to an interface at the point of consumption so tests can supply
// a fake rather than a real database.
type Queue interface {
	Checkout(ctx context.Context) (*postgres.Session, error)
	Lock(ctx context.Context, sess *postgres.Session, n int, excludeIDs []int64) ([]domain.Job, error)
	MarkSuccessful(ctx context.Context, sess *postgres.Session, job domain.Job) (int64, error)
	MarkFailed(ctx context.Context, sess *postgres.Session, job domain.Job, when time.Time, reason string) (int64, error)
	MarkRetried(ctx context.Context, sess *postgres.Session, job domain.Job, dueAt time.Time) (int64, error)
}

// Config tunes the dispatcher's poll loops.
type Config struct {
	// Concurrency is the number of independent poll loops, each on its
	// own Session.
	Concurrency int
	// BatchSize is n passed to Lock on every poll.
	BatchSize int
	// PollInterval is how long an idle loop waits after an empty claim
	// before polling again.
	PollInterval time.Duration
	// OperationTimeout bounds every individual store call (Lock, a
	// terminal transition) the dispatcher makes. Zero means no timeout
	// is applied beyond ctx's own deadline.
	OperationTimeout time.Duration
}

// Dispatcher is the reference consumer of the core: it polls via Lock,
// dispatches claimed jobs to a registered Handler by module name, and
// resolves every claim with exactly one terminal transition — including
// on panic.
type Dispatcher struct {
	queue        Queue
	registry     *retry.ModuleRegistry
	errorHandler ErrorHandler
	cfg          Config
}

// New builds a Dispatcher. A nil errorHandler falls back to
// DefaultErrorHandler.
func New(queue Queue, registry *retry.ModuleRegistry, errorHandler ErrorHandler, cfg Config) *Dispatcher {
	if errorHandler == nil {
		errorHandler = DefaultErrorHandler{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Dispatcher{queue: queue, registry: registry, errorHandler: errorHandler, cfg: cfg}
}

// withOpTimeout bounds a single store call with cfg.OperationTimeout, when
// set, so a wedged Lock or terminal transition can't block a poll loop
// forever.
func (d *Dispatcher) withOpTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.cfg.OperationTimeout)
}

// Run starts Concurrency poll loops and blocks until ctx is cancelled or
// one loop returns a non-cancellation error, at which point errgroup
// cancels the rest.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range d.cfg.Concurrency {
		workerID := i
		g.Go(func() error {
			return d.pollLoop(ctx, workerID)
		})
	}
	return g.Wait()
}

func (d *Dispatcher) pollLoop(ctx context.Context, workerID int) error {
	sess, err := d.queue.Checkout(ctx)
	if err != nil {
		return fmt.Errorf("dispatcher worker %d: checkout: %w", workerID, err)
	}
	defer sess.Close()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		lockCtx, cancel := d.withOpTimeout(ctx)
		jobs, err := d.queue.Lock(lockCtx, sess, d.cfg.BatchSize, nil)
		cancel()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			slog.ErrorContext(ctx, "dispatcher: lock failed", "worker_id", workerID, "error", err)
			return fmt.Errorf("dispatcher worker %d: lock: %w", workerID, err)
		}

		for _, job := range jobs {
			d.dispatchOne(ctx, sess, job)
		}

		if len(jobs) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
}

// dispatchOne resolves exactly one claimed job with exactly one terminal
// transition, including when the handler panics.
func (d *Dispatcher) dispatchOne(ctx context.Context, sess *postgres.Session, job domain.Job) {
	if job.Payload.Module == nil {
		d.fail(ctx, sess, job, "opaque payload has no dispatchable handler")
		return
	}

	handler, ok := d.registry.Lookup(job.Payload.Module.Module)
	if !ok {
		d.fail(ctx, sess, job, fmt.Sprintf("module %q is not registered", job.Payload.Module.Module))
		return
	}

	err := d.invoke(ctx, handler, job)
	if err == nil {
		markCtx, cancel := d.withOpTimeout(ctx)
		_, markErr := d.queue.MarkSuccessful(markCtx, sess, job)
		cancel()
		if markErr != nil {
			slog.ErrorContext(ctx, "dispatcher: mark_successful failed", "job_id", job.ID, "error", markErr)
		}
		return
	}

	if panicErr, isPanic := asPanicError(err); isPanic {
		d.errorHandler.HandlePanic(ctx, job, panicErr.Value, panicErr.StackTrace)
		d.fail(ctx, sess, job, panicErr.Error())
		return
	}

	d.errorHandler.HandleError(ctx, job, err)
	d.resolveError(ctx, sess, job, err)
}

// invoke calls handler.Handle, converting a panic into a PanicError rather
// than letting it unwind into the poll loop. This is the one place in the
// dispatcher where user code runs.
func (d *Dispatcher) invoke(ctx context.Context, handler retry.Handler, job domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r, StackTrace: string(debug.Stack())}
		}
	}()
	return handler.Handle(ctx, job)
}

func asPanicError(err error) (PanicError, bool) {
	var panicErr PanicError
	if errors.As(err, &panicErr) {
		return panicErr, true
	}
	return PanicError{}, false
}

// resolveError consults the Retry Policy Adapter for a custom schedule; a
// noop decision, or an error from the adapter itself, falls back to
// MarkFailed. A past-due decision timestamp is passed straight to
// MarkRetried — the Claim Engine's due_at <= now() filter then makes it
// claimable on the very next Lock call, which is what "immediately
// eligible" means operationally.
func (d *Dispatcher) resolveError(ctx context.Context, sess *postgres.Session, job domain.Job, cause error) {
	module := job.Payload.Module.Module
	decision, err := d.registry.RetryAt(module, cause.Error(), job.Payload.Module.Args, job.InternalMeta.Attempts)
	if err != nil {
		slog.ErrorContext(ctx, "dispatcher: retry_at adapter failed", "job_id", job.ID, "module", module, "error", err)
		d.fail(ctx, sess, job, cause.Error())
		return
	}
	if decision.Noop {
		d.fail(ctx, sess, job, cause.Error())
		return
	}

	retryCtx, cancel := d.withOpTimeout(ctx)
	_, err = d.queue.MarkRetried(retryCtx, sess, job, decision.At)
	cancel()
	if err != nil {
		slog.ErrorContext(ctx, "dispatcher: mark_retried failed", "job_id", job.ID, "error", err)
	}
}

func (d *Dispatcher) fail(ctx context.Context, sess *postgres.Session, job domain.Job, reason string) {
	failCtx, cancel := d.withOpTimeout(ctx)
	_, err := d.queue.MarkFailed(failCtx, sess, job, domain.Now(), reason)
	cancel()
	if err != nil {
		slog.ErrorContext(ctx, "dispatcher: mark_failed failed", "job_id", job.ID, "error", err)
	}
}
