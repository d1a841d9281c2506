package postgres

import (
	"context"
	"fmt"

	"github.com/rezkam/rihanna/internal/domain"
)

// Lock atomically claims up to n jobs on sess's connection, returning them
// in claim priority order with their advisory locks held by the caller's
// session. n=0 returns immediately without touching the database.
func (s *Store) Lock(ctx context.Context, sess *Session, n int, excludeIDs []int64) ([]domain.Job, error) {
	if n == 0 {
		return nil, nil
	}

	if excludeIDs == nil {
		excludeIDs = []int64{}
	}

	rows, err := sess.conn.Query(ctx, claimSQL, excludeIDs, n, s.lockClassID)
	if err != nil {
		return nil, wrapPgError("lock", err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0, n)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("lock: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPgError("lock", err)
	}

	return jobs, nil
}
