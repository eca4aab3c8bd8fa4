package db

import (
	"context"
	"fmt"
)

// Advisory locks are session-scoped, so the unlock must run on the same
// connection as the lock. The acquiring connection is pinned out of the pool
// until release; unlocking through the pool would land on an arbitrary
// session and silently leave the lock held.

// TryAcquireAdvisoryLock attempts a non-blocking session advisory lock on a
// dedicated connection.
func (db *DB) TryAcquireAdvisoryLock(ctx context.Context, lockID int64) (bool, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection for advisory lock: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired); err != nil {
		conn.Release()

		return false, fmt.Errorf("try acquire advisory lock: %w", err)
	}

	if !acquired {
		conn.Release()

		return false, nil
	}

	db.lockMu.Lock()
	db.lockConns[lockID] = conn
	db.lockMu.Unlock()

	return true, nil
}

// ReleaseAdvisoryLock releases a lock acquired by TryAcquireAdvisoryLock and
// returns its connection to the pool. Fails when this process does not hold
// the lock.
func (db *DB) ReleaseAdvisoryLock(ctx context.Context, lockID int64) error {
	db.lockMu.Lock()
	conn, ok := db.lockConns[lockID]
	delete(db.lockConns, lockID)
	db.lockMu.Unlock()

	if !ok {
		return fmt.Errorf("advisory lock %d is not held by this process", lockID)
	}

	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, lockID); err != nil {
		return fmt.Errorf("release advisory lock: %w", err)
	}

	return nil
}
