package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rezkam/rihanna/internal/domain"
)

// RetryFailed reverts a failed job back to ready: clears failed_at and
// fail_reason and bumps enqueued_at to now. It runs on the pool directly —
// a failed job holds no advisory lock by construction, so no Session is
// needed. Returns domain.ErrJobNotFound when the row does not exist or is
// not currently failed; in that case the row is left untouched.
func (s *Store) RetryFailed(ctx context.Context, id int64) (domain.Job, error) {
	row := s.pool.QueryRow(ctx, retryFailedSQL, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("retry_failed: %w", domain.ErrJobNotFound)
		}
		return domain.Job{}, wrapPgError("retry_failed", err)
	}
	return job, nil
}
