package postgres

import (
	"context"
	"fmt"
	"time"

	ierr "github.com/revuo/revuo/internal/errors"
)

// DefaultLockTimeout applies when LockKey is given no timeout.
const DefaultLockTimeout = 30 * time.Second

// LockKey acquires a transaction-scoped advisory lock on key. A zero timeout uses
// DefaultLockTimeout; a negative one fails fast. Released on commit or rollback.
// Must be called inside WithTx.
func (c *Client) LockKey(ctx context.Context, key string, timeout time.Duration) error {
	tx := c.TxFromContext(ctx)
	if tx == nil {
		return ierr.NewError("LockKey must be called inside a transaction").
			Mark(ierr.ErrInternal)
	}

	if timeout < 0 {
		ok, err := c.TryLockKey(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return ierr.NewErrorf("lock %s already held", key).
				WithHint("Another instance holds the lock").
				Mark(ierr.ErrInvalidOperation)
		}
		return nil
	}
	if timeout == 0 {
		timeout = DefaultLockTimeout
	}

	// SET LOCAL resets on commit/rollback
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", timeout.Milliseconds())); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to set lock timeout").
			Mark(ierr.ErrDatabase)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		if hasCode(err, codeLockTimeout) {
			return ierr.WithError(err).
				WithHintf("Could not acquire lock within %s", timeout).
				WithReportableDetails(map[string]any{
					"key": key,
				}).
				Mark(ierr.ErrInvalidOperation)
		}
		return ierr.WithError(err).
			WithHint("Failed to acquire lock").
			Mark(ierr.ErrDatabase)
	}

	return nil
}

// TryLockKey tries to take the advisory lock without waiting. ok is false if it is held.
func (c *Client) TryLockKey(ctx context.Context, key string) (bool, error) {
	tx := c.TxFromContext(ctx)
	if tx == nil {
		return false, ierr.NewError("TryLockKey must be called inside a transaction").
			Mark(ierr.ErrInternal)
	}

	var ok bool
	if err := tx.QueryRowContext(ctx, `SELECT pg_try_advisory_xact_lock(hashtext($1))`, key).Scan(&ok); err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to acquire lock").
			Mark(ierr.ErrDatabase)
	}
	return ok, nil
}
