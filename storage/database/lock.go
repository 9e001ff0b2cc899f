package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/danileyton/epicereport-sub000/core/runner"
)

// PollLockID is the advisory lock key shared by every polling pass.
const PollLockID int64 = 0x45504952 // "EPIR"

// AdvisoryLocker is a runner.Locker backed by a postgres session advisory lock.
type AdvisoryLocker struct {
	db     *sql.DB
	lockID int64
}

var _ runner.Locker = (*AdvisoryLocker)(nil)

func NewAdvisoryLocker(db *sql.DB, lockID int64) *AdvisoryLocker {
	return &AdvisoryLocker{db: db, lockID: lockID}
}

func (l *AdvisoryLocker) TryLock(ctx context.Context) (func(), bool, error) {
	// session locks belong to a connection: keep it until unlock
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to acquire lock")
	}

	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, false, errors.Wrap(err, "failed to acquire lock")
	}
	if !ok {
		_ = conn.Close()
		return nil, false, nil
	}

	unlock := func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", l.lockID)
		_ = conn.Close()
	}
	return unlock, true, nil
}

// NewLocker returns the pass locker suited to engine.
func NewLocker(db *sql.DB, engine string) runner.Locker {
	if engine == EnginePostgres {
		return NewAdvisoryLocker(db, PollLockID)
	}
	return runner.NewMutexLocker()
}
