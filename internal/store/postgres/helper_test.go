package postgres

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rezkam/rihanna/internal/config"
	"github.com/stretchr/testify/require"
)

// setupTestStore opens a Store against a real PostgreSQL instance named by
// RIHANNA_DB_DSN/RIHANNA_LOCK_CLASS_ID, skipping the test when unset. The
// rihanna_jobs table is truncated after the test via t.Cleanup.
func setupTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()

	cfg, err := config.LoadTestConfig()
	if err != nil {
		t.Skipf("failed to load test config: %v (set RIHANNA_DB_DSN and RIHANNA_LOCK_CLASS_ID to run integration tests)", err)
	}

	ctx := context.Background()
	store, err := NewPostgresStore(ctx, cfg.Database.DSN, cfg.Lock.ClassID)
	require.NoError(t, err)

	t.Cleanup(func() {
		db, err := sql.Open("pgx", cfg.Database.DSN)
		if err == nil {
			_, _ = db.Exec("TRUNCATE TABLE rihanna_jobs RESTART IDENTITY CASCADE")
			_ = db.Close()
		}
		_ = store.Close()
	})

	return store, ctx
}

// loadDSNForTest returns the DSN used by setupTestStore, for tests that
// also need a second, independent raw connection.
func loadDSNForTest(t *testing.T) (string, int32) {
	t.Helper()
	cfg, err := config.LoadTestConfig()
	if err != nil {
		t.Skipf("failed to load test config: %v", err)
	}
	return cfg.Database.DSN, cfg.Lock.ClassID
}

// openRawAdvisoryLockConn opens a second, independent connection the test
// can use to probe pg_try_advisory_lock from outside the Store under test,
// simulating a competing worker session.
func openRawAdvisoryLockConn(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
