package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter approximates a sliding window from two fixed buckets: the
// previous bucket's count is weighted by how much of it still overlaps.
type RateLimiter struct {
	cli *redis.Client
	now func() time.Time
}

type RateLimiterOption func(*RateLimiter)

// WithClock overrides time.Now for bucket selection.
func WithClock(now func() time.Time) RateLimiterOption {
	return func(r *RateLimiter) { r.now = now }
}

func NewRateLimiter(c *Client, opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{cli: c.cli, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Allow records one hit against key. Rejected hits are counted too.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now()
	start := now.Truncate(window)
	cur := bucketKey(key, start)
	prev := bucketKey(key, start.Add(-window))

	var incr *redis.IntCmd
	var last *redis.StringCmd
	_, err := r.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, cur)
		p.Expire(ctx, cur, 2*window)
		last = p.Get(ctx, prev)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}

	prevCount, _ := last.Int64()
	overlap := 1 - float64(now.Sub(start))/float64(window)
	estimate := float64(prevCount)*overlap + float64(incr.Val())
	return estimate <= float64(limit), nil
}

func bucketKey(key string, start time.Time) string {
	return fmt.Sprintf("%s:%d", key, start.Unix())
}

func UserActionKey(userID, action string) string {
	return fmt.Sprintf("rate_limit:%s:%s", userID, action)
}
