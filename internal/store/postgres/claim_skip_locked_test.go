package postgres

import (
	"context"
	"testing"

	"github.com/rezkam/rihanna/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_SkipsJobLockedByAnotherSession(t *testing.T) {
	store, ctx := setupTestStore(t)
	dsn, classID := loadDSNForTest(t)

	payload, err := domain.NewOpaquePayload("work")
	require.NoError(t, err)

	j, err := store.Enqueue(ctx, payload, domain.EnqueueOptions{})
	require.NoError(t, err)
	other1, err := store.Enqueue(ctx, payload, domain.EnqueueOptions{})
	require.NoError(t, err)
	other2, err := store.Enqueue(ctx, payload, domain.EnqueueOptions{})
	require.NoError(t, err)

	// Session B holds the advisory lock on j via a pinned connection.
	rawPool := openRawAdvisoryLockConn(t, dsn)
	bConn, err := rawPool.Conn(context.Background())
	require.NoError(t, err)
	defer bConn.Close()

	var acquired bool
	require.NoError(t, bConn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1, $2)", classID, j.ID).Scan(&acquired))
	require.True(t, acquired)

	sess, err := store.Checkout(ctx)
	require.NoError(t, err)
	defer sess.Close()

	claimed, err := store.Lock(ctx, sess, 3, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	ids := []int64{claimed[0].ID, claimed[1].ID}
	assert.ElementsMatch(t, []int64{other1.ID, other2.ID}, ids)
	assert.NotContains(t, ids, j.ID)
}

func TestLock_SkipsRowLockedByAnotherTransaction(t *testing.T) {
	store, ctx := setupTestStore(t)
	dsn, _ := loadDSNForTest(t)

	payload, err := domain.NewOpaquePayload("work")
	require.NoError(t, err)

	j, err := store.Enqueue(ctx, payload, domain.EnqueueOptions{})
	require.NoError(t, err)
	other1, err := store.Enqueue(ctx, payload, domain.EnqueueOptions{})
	require.NoError(t, err)
	other2, err := store.Enqueue(ctx, payload, domain.EnqueueOptions{})
	require.NoError(t, err)

	rawPool := openRawAdvisoryLockConn(t, dsn)
	bConn, err := rawPool.Conn(context.Background())
	require.NoError(t, err)
	defer bConn.Close()

	bTx, err := bConn.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	defer func() { _ = bTx.Rollback() }()

	_, err = bTx.ExecContext(ctx, "SELECT * FROM rihanna_jobs WHERE id = $1 FOR UPDATE", j.ID)
	require.NoError(t, err)

	sess, err := store.Checkout(ctx)
	require.NoError(t, err)
	defer sess.Close()

	claimed, err := store.Lock(ctx, sess, 3, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	ids := []int64{claimed[0].ID, claimed[1].ID}
	assert.ElementsMatch(t, []int64{other1.ID, other2.ID}, ids)
	assert.NotContains(t, ids, j.ID)
}
