package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"casino-sim-lab/internal/storage"
)

// TickLockKey is the advisory lock key guarding hour ticks.
const TickLockKey int64 = 0x6361_7369_6e6f // "casino"

// Locker implements storage.Locker with a session-level advisory lock.
// The lock lives on a dedicated connection held until Release.
type Locker struct {
	pool *Pool
	key  int64
}

// NewLocker creates a Locker for key.
func NewLocker(pool *Pool, key int64) *Locker {
	return &Locker{pool: pool, key: key}
}

var _ storage.Locker = (*Locker)(nil)

// TryLock takes the advisory lock without waiting.
func (l *Locker) TryLock(ctx context.Context) (storage.Lock, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, storage.ErrLocked
	}
	return &advisoryLock{conn: conn, key: l.key}, nil
}

type advisoryLock struct {
	conn *pgxpool.Conn
	key  int64
	once sync.Once
	err  error
}

// Release unlocks and returns the connection. A connection whose unlock
// failed is closed instead so the lock cannot leak back into the pool.
func (a *advisoryLock) Release(ctx context.Context) error {
	a.once.Do(func() {
		var ok bool
		err := a.conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, a.key).Scan(&ok)
		switch {
		case err != nil:
			a.err = fmt.Errorf("advisory unlock: %w", err)
		case !ok:
			a.err = fmt.Errorf("advisory unlock: lock %d was not held", a.key)
		}
		if a.err != nil {
			_ = a.conn.Conn().Close(context.WithoutCancel(ctx))
		}
		a.conn.Release()
	})
	return a.err
}
