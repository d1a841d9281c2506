package postgres

// jobColumns is the fixed projection scanJob expects, in order.
const jobColumns = `id, payload, enqueued_at, due_at, failed_at, fail_reason, priority, rihanna_internal_meta`

const insertJobSQL = `
INSERT INTO rihanna_jobs (payload, due_at, priority, enqueued_at, rihanna_internal_meta)
VALUES ($1, $2, $3, now(), '{"attempts":0}'::jsonb)
RETURNING ` + jobColumns

// claimSQL is the single atomic statement the Claim Engine runs: it orders
// the top-n candidates by claim priority, takes a SKIP LOCKED row lock on
// exactly that window, non-blockingly tries the advisory lock on each, and
// re-sorts the winners into claim priority order for the final projection
// (a CTE does not guarantee the final SELECT preserves an earlier CTE's
// row order). Capping the candidate window at n, rather than an oversized
// window, is deliberate: pg_try_advisory_lock acquires the lock as a side
// effect of merely being evaluated, so trying it against more rows than we
// intend to keep would leak advisory locks on whichever winners we then
// discard. The cost is that under heavy contention within the first n
// candidates, a call can return fewer than n rows even though more
// claimable jobs exist further back in the table; the next poll picks
// those up.
//
// $1 = excluded ids, $2 = n, $3 = lock class id
const claimSQL = `
WITH candidates AS (
    SELECT id, priority, due_at, enqueued_at
    FROM rihanna_jobs
    WHERE failed_at IS NULL
      AND (due_at IS NULL OR due_at <= now())
      AND NOT (id = ANY($1::bigint[]))
    ORDER BY priority ASC, due_at ASC NULLS FIRST, enqueued_at ASC
    LIMIT $2
    FOR UPDATE SKIP LOCKED
),
locked AS (
    SELECT id, priority, due_at, enqueued_at
    FROM candidates
    WHERE pg_try_advisory_lock($3, id::int)
)
SELECT ` + jobColumns + `
FROM rihanna_jobs
WHERE id IN (SELECT id FROM locked)
ORDER BY priority ASC, due_at ASC NULLS FIRST, enqueued_at ASC
`

// markSuccessfulSQL deletes the row and releases the advisory lock in one
// autocommitted statement, so no surrounding transaction can outlive the
// unlock.
const markSuccessfulSQL = `
WITH mutated AS (
    DELETE FROM rihanna_jobs WHERE id = $1
    RETURNING id
)
SELECT pg_advisory_unlock($2, $1::int), (SELECT count(*) FROM mutated)
`

const markFailedSQL = `
WITH mutated AS (
    UPDATE rihanna_jobs SET failed_at = $3, fail_reason = $4
    WHERE id = $1
    RETURNING id
)
SELECT pg_advisory_unlock($2, $1::int), (SELECT count(*) FROM mutated)
`

const markRetriedSQL = `
WITH mutated AS (
    UPDATE rihanna_jobs
    SET due_at = $3,
        rihanna_internal_meta = jsonb_set(
            rihanna_internal_meta,
            '{attempts}',
            to_jsonb(COALESCE((rihanna_internal_meta->>'attempts')::int, 0) + 1)
        )
    WHERE id = $1
    RETURNING id
)
SELECT pg_advisory_unlock($2, $1::int), (SELECT count(*) FROM mutated)
`

const markReenqueuedSQL = `
WITH mutated AS (
    UPDATE rihanna_jobs
    SET due_at = $3, failed_at = NULL, fail_reason = NULL
    WHERE id = $1
    RETURNING id
)
SELECT pg_advisory_unlock($2, $1::int), (SELECT count(*) FROM mutated)
`

const retryFailedSQL = `
UPDATE rihanna_jobs
SET failed_at = NULL, fail_reason = NULL, enqueued_at = now()
WHERE id = $1 AND failed_at IS NOT NULL
RETURNING ` + jobColumns
