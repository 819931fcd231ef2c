package repository

import (
	"context"
	"time"

	"collab-billing/internal/domain/model"
)

type OutboxRepository interface {
	Enqueue(ctx context.Context, tx Tx, m *model.OutboxMessage) error
	// Claim leases up to limit unsent messages due at now by pushing their
	// next_attempt_at to leaseUntil. The lease is committed before any delivery,
	// so a message is resent only if its outcome is never recorded.
	Claim(ctx context.Context, tx Tx, now, leaseUntil time.Time, limit int) ([]*model.OutboxMessage, error)
	MarkSent(ctx context.Context, tx Tx, id string, at time.Time) error
	MarkFailed(ctx context.Context, tx Tx, id string, attempts int, lastErr string, next time.Time) error
}
