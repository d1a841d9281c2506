package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/rezkam/rihanna/internal/domain"
)

// runTerminal executes one of the mark_* statements on sess's connection
// and reports rows affected. Each statement is a single autocommitted
// round trip that unlocks and mutates together, so no transaction can
// outlive the advisory-lock release (spec's "Transactions" concern).
func (s *Store) runTerminal(ctx context.Context, op string, sess *Session, sql string, jobID int64, extra ...any) (int64, error) {
	args := append([]any{jobID, s.lockClassID}, extra...)

	var unlocked bool
	var rowsAffected int64
	if err := sess.conn.QueryRow(ctx, sql, args...).Scan(&unlocked, &rowsAffected); err != nil {
		return 0, wrapPgError(op, err)
	}
	if !unlocked {
		slog.WarnContext(ctx, "terminal transition did not hold the advisory lock it expected",
			"op", op, "job_id", jobID)
	}
	return rowsAffected, nil
}

// MarkSuccessful deletes the job row and releases its advisory lock.
// rows_affected = 0 is a legitimate outcome when the row was already
// deleted by a concurrent path; it is not an error.
func (s *Store) MarkSuccessful(ctx context.Context, sess *Session, job domain.Job) (int64, error) {
	return s.runTerminal(ctx, "mark_successful", sess, markSuccessfulSQL, job.ID)
}

// MarkFailed sets failed_at/fail_reason and releases the advisory lock.
func (s *Store) MarkFailed(ctx context.Context, sess *Session, job domain.Job, when time.Time, reason string) (int64, error) {
	return s.runTerminal(ctx, "mark_failed", sess, markFailedSQL, job.ID, when, reason)
}

// MarkRetried sets due_at, increments rihanna_internal_meta.attempts by
// one, and releases the advisory lock.
func (s *Store) MarkRetried(ctx context.Context, sess *Session, job domain.Job, dueAt time.Time) (int64, error) {
	return s.runTerminal(ctx, "mark_retried", sess, markRetriedSQL, job.ID, dueAt)
}

// MarkReenqueued sets due_at, clears failed_at/fail_reason, leaves
// attempts untouched, and releases the advisory lock.
func (s *Store) MarkReenqueued(ctx context.Context, sess *Session, job domain.Job, dueAt time.Time) (int64, error) {
	return s.runTerminal(ctx, "mark_reenqueued", sess, markReenqueuedSQL, job.ID, dueAt)
}
