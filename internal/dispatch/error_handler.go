package dispatch

import (
	"context"
	"log/slog"

	"github.com/rezkam/rihanna/internal/domain"
)

// ErrorHandler observes job errors and panics for telemetry/alerting. It
// never influences retry behavior itself (that's the Retry Policy
// Adapter's job) — it's a hook for logging, metrics, or forwarding to an
// error tracker, in the spirit of River's error-handling pattern.
type ErrorHandler interface {
	HandleError(ctx context.Context, job domain.Job, err error)
	HandlePanic(ctx context.Context, job domain.Job, panicVal any, stackTrace string)
}

// DefaultErrorHandler logs with structured slog fields and does nothing
// else. It's what Dispatcher uses when the caller doesn't supply one.
type DefaultErrorHandler struct{}

func (DefaultErrorHandler) HandleError(ctx context.Context, job domain.Job, err error) {
	slog.ErrorContext(ctx, "job failed",
		slog.Int64("job_id", job.ID),
		slog.Int("attempts", int(job.InternalMeta.Attempts)),
		slog.String("error", err.Error()),
		slog.Bool("retryable", IsRetryable(err)),
	)
}

func (DefaultErrorHandler) HandlePanic(ctx context.Context, job domain.Job, panicVal any, stackTrace string) {
	slog.ErrorContext(ctx, "job panicked",
		slog.Int64("job_id", job.ID),
		slog.Any("panic_value", panicVal),
		slog.String("stack_trace", stackTrace),
	)
}
