package db

import (
	"context"
	"fmt"

	coreerrors "github.com/lueurxax/question-forum/internal/core/errors"
)

// WithAdvisoryLock runs fn while holding a session advisory lock on a dedicated
// connection. It returns false without running fn when another session holds the lock.
func (db *DB) WithAdvisoryLock(ctx context.Context, lockID int64, fn func(ctx context.Context) error) (bool, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		return false, fmt.Errorf("try acquire advisory lock: %w", err)
	}

	if !acquired {
		return false, nil
	}

	defer func() {
		//nolint:errcheck,contextcheck // unlock must run even when ctx is canceled
		_, _ = conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", lockID)
	}()

	return true, fn(ctx)
}

// WithQuestionLock serializes lifecycle transitions of one question across instances.
// The lock is a session lock, so no transaction stays open while fn calls external services.
func (db *DB) WithQuestionLock(ctx context.Context, questionID int64, fn func(ctx context.Context) error) error {
	acquired, err := db.WithAdvisoryLock(ctx, questionLockBase+questionID, fn)
	if err != nil {
		return err
	}

	if !acquired {
		return fmt.Errorf("question %d: %w", questionID, coreerrors.ErrTransitionInProgress)
	}

	return nil
}
