// Package distlock serializes scheduler sweeps across replicas. Locks are
// best-effort mutual exclusion: a sweep that loses the race skips its tick
// rather than blocking.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker is a non-blocking distributed lock. A Locker instance belongs to a
// single goroutine; replicas coordinate on the lock name, not the instance.
type Locker interface {
	// TryLock attempts to take the lock without waiting. Returns true when
	// this instance now holds it.
	TryLock(ctx context.Context) (bool, error)
	// Unlock releases the lock if this instance still owns it.
	Unlock(ctx context.Context) error
	// Extend pushes the lock expiry out for holders whose work outlives the
	// original TTL. Backends without expiry treat this as a no-op.
	Extend(ctx context.Context, ttl time.Duration) error
}

// New picks the strongest available backend: Redis when a client is
// configured, otherwise Postgres advisory locks on the shared pool.
func New(rdb *redis.Client, db *sql.DB, name string, ttl time.Duration) Locker {
	if rdb != nil {
		return NewRedisLock(rdb, name, ttl)
	}
	return NewAdvisoryLock(db, name)
}

// AdvisoryLock implements Locker with pg_try_advisory_lock. The lock is
// session-scoped: it survives as long as the pooled connection does and
// vanishes if the connection drops, so there is no TTL to extend.
type AdvisoryLock struct {
	db  *sql.DB
	key int64
}

// NewAdvisoryLock derives a stable 64-bit advisory key from name.
func NewAdvisoryLock(db *sql.DB, name string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(name))
	return &AdvisoryLock{db: db, key: int64(h.Sum64())}
}

func (l *AdvisoryLock) TryLock(ctx context.Context) (bool, error) {
	var got bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&got)
	return got, err
}

func (l *AdvisoryLock) Unlock(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.key)
	return err
}

func (l *AdvisoryLock) Extend(ctx context.Context, ttl time.Duration) error {
	return nil
}
