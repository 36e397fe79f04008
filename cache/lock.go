package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when releasing a lock that expired or moved owner.
var ErrLockNotHeld = errors.New("cache: lock not held by this owner")

// Locker provides a cross-process lock around a cache key's computation.
type Locker interface {
	// TryLock acquires the lock for ttl without waiting. The returned release
	// func is nil when the lock was not acquired.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker implements Locker with SET NX PX and an owner-checked release.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLocker creates a locker whose keys live under "lock:".
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client, prefix: "lock:"}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lockKey := l.prefix + key
	owner := uuid.NewString()

	ok, err := l.client.SetNX(ctx, lockKey, owner, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	return func(ctx context.Context) error {
		res, err := unlockScript.Run(ctx, l.client, []string{lockKey}, owner).Int64()
		if err != nil {
			return err
		}
		if res == 0 {
			return ErrLockNotHeld
		}
		return nil
	}, nil
}
