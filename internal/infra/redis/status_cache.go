package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
	"collab-billing/internal/infra/metrics"
)

var _ repository.StatusCache = (*StatusCache)(nil)

// StatusCache stores one JSON snapshot per user under status:<user id>.
type StatusCache struct {
	client KV
	log    *zerolog.Logger
}

func NewStatusCache(client KV, logger *zerolog.Logger) *StatusCache {
	l := logger.With().Str("component", "StatusCache").Logger()
	return &StatusCache{client: client, log: &l}
}

func statusKey(userID string) string { return fmt.Sprintf("status:%s", userID) }

func (c *StatusCache) Get(ctx context.Context, userID string) (*model.UserStatus, error) {
	val, err := c.client.Get(ctx, statusKey(userID))
	if err != nil {
		result := metrics.CacheMiss
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("user_id", userID).Msg("status cache read failed")
			result = metrics.CacheError
		}
		metrics.IncCacheLookup("status", result)
		return nil, domain.ErrNotFound
	}
	var st model.UserStatus
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		metrics.IncCacheLookup("status", metrics.CacheError)
		_ = c.client.Del(ctx, statusKey(userID))
		return nil, domain.ErrNotFound
	}
	metrics.IncCacheLookup("status", metrics.CacheHit)
	return &st, nil
}

func (c *StatusCache) Set(ctx context.Context, status *model.UserStatus, ttl time.Duration) error {
	if status == nil || status.UserID == "" {
		return domain.ErrInvalidArgument
	}
	if ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	return c.client.Set(ctx, statusKey(status.UserID), b, ttl)
}

func (c *StatusCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, statusKey(userID))
}
