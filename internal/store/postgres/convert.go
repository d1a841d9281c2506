package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/rezkam/rihanna/internal/domain"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob reads one rihanna_jobs row in the fixed column order every query
// in this package projects: id, payload, enqueued_at, due_at, failed_at,
// fail_reason, priority, rihanna_internal_meta.
func scanJob(row rowScanner) (domain.Job, error) {
	var (
		job        domain.Job
		payloadRaw []byte
		metaRaw    []byte
	)

	if err := row.Scan(
		&job.ID,
		&payloadRaw,
		&job.EnqueuedAt,
		&job.DueAt,
		&job.FailedAt,
		&job.FailReason,
		&job.Priority,
		&metaRaw,
	); err != nil {
		return domain.Job{}, err
	}

	if err := json.Unmarshal(payloadRaw, &job.Payload); err != nil {
		return domain.Job{}, fmt.Errorf("decode job payload: %w", err)
	}
	if err := json.Unmarshal(metaRaw, &job.InternalMeta); err != nil {
		return domain.Job{}, fmt.Errorf("decode job internal meta: %w", err)
	}

	return job, nil
}

func marshalPayload(p domain.Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	return raw, nil
}
