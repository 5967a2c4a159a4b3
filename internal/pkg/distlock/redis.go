package distlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "outreach:lock:"

// Lua guards release and extend with an ownership check so a holder whose
// TTL lapsed cannot clobber the next holder's lock.
var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

// RedisLock implements Locker with SET NX plus a per-instance ownership
// token. The TTL bounds how long a crashed holder can block other replicas.
type RedisLock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// NewRedisLock creates a lock on name with the given expiry.
func NewRedisLock(rdb *redis.Client, name string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		rdb:   rdb,
		key:   keyPrefix + name,
		token: uuid.New().String(),
		ttl:   ttl,
	}
}

func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	got, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	return got, nil
}

func (l *RedisLock) Unlock(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Result(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}

func (l *RedisLock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("extend lock %s: no longer held", l.key)
	}
	return nil
}
