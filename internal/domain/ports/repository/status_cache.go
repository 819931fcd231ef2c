package repository

import (
	"context"
	"time"

	"collab-billing/internal/domain/model"
)

// StatusCache holds per-user status snapshots for a short freshness window.
type StatusCache interface {
	// Get returns ErrNotFound on a miss.
	Get(ctx context.Context, userID string) (*model.UserStatus, error)
	Set(ctx context.Context, status *model.UserStatus, ttl time.Duration) error
	Invalidate(ctx context.Context, userID string) error
}
