package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// ErrLockHeld is returned when another holder owns the key.
var ErrLockHeld = errors.New("lock is held by another owner")

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

var _ Locker = (*RedisLocker)(nil)

// RedisLocker is a single-instance SET NX lease. Each holder gets a random
// token and only that token can release the key.
type RedisLocker struct {
	cli     *redis.Client
	retries uint64
	backoff time.Duration
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli, retries: 2, backoff: 50 * time.Millisecond}
}

// TryLock makes a few quick attempts before giving up with ErrLockHeld.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	b := retry.WithMaxRetries(l.retries, retry.NewConstant(l.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		switch {
		case err != nil:
			return retry.RetryableError(err)
		case !ok:
			return retry.RetryableError(ErrLockHeld)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Unlock releases key only while token still owns it; a lease that already
// expired or passed to someone else is left alone.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, l.cli, []string{key}, token).Err()
}
