package postgres

import (
	"context"

	"github.com/rezkam/rihanna/internal/domain"
)

// Enqueue inserts a new job in state ready. A nil Priority coerces to
// domain.DefaultPriority; a nil DueAt means eligible immediately.
func (s *Store) Enqueue(ctx context.Context, payload domain.Payload, opts domain.EnqueueOptions) (domain.Job, error) {
	priority := domain.DefaultPriority
	if opts.Priority != nil {
		priority = *opts.Priority
	}

	payloadRaw, err := marshalPayload(payload)
	if err != nil {
		return domain.Job{}, err
	}

	row := s.pool.QueryRow(ctx, insertJobSQL, payloadRaw, opts.DueAt, priority)
	job, err := scanJob(row)
	if err != nil {
		return domain.Job{}, wrapPgError("enqueue", err)
	}
	return job, nil
}
