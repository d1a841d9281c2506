// Package postgres implements the job store on PostgreSQL, coordinating
// concurrent workers with session-scoped advisory locks.
package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the PostgreSQL-backed job store. It owns a connection pool and
// the advisory-lock class id every lock call on this Store uses.
type Store struct {
	pool        *pgxpool.Pool
	lockClassID int32
}

// NewStore wraps an already-configured pool. lockClassID partitions the
// advisory-lock namespace; it must be identical across every Store
// cooperating on the same rihanna_jobs table.
func NewStore(pool *pgxpool.Pool, lockClassID int32) *Store {
	return &Store{pool: pool, lockClassID: lockClassID}
}

// Pool returns the underlying connection pool, for callers that need raw
// access (metrics, health checks).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the connection pool. Callers must ensure every Session has
// already been closed; Close does not wait for or revoke checked-out
// connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Session wraps a single checked-out physical connection. PostgreSQL
// advisory locks are scoped to a backend connection, not a transaction, so
// the Claim Engine and the terminal transition that resolves a claimed job
// must run on the same Session.
//
// Session.Close must only be called once every lock it acquired has been
// released by a terminal transition. Closing early returns the physical
// connection to the pool with advisory locks still attached to it; the
// next checkout silently inherits them.
type Session struct {
	mu     sync.Mutex
	conn   *pgxpool.Conn
	closed bool
}

// Checkout acquires a dedicated connection for a claim-to-terminal span.
func (s *Store) Checkout(ctx context.Context) (*Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session connection: %w", err)
	}
	return &Session{conn: conn}, nil
}

// Close releases the underlying connection back to the pool. Safe to call
// more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.conn != nil {
		s.conn.Release()
	}
}
