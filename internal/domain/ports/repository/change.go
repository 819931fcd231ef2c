package repository

import (
	"context"
	"time"

	"collab-billing/internal/domain/model"
)

// SubscriptionChangeRepository stores Pending->Confirmed lifecycle intents.
type SubscriptionChangeRepository interface {
	Save(ctx context.Context, tx Tx, c *model.SubscriptionChange) error
	// FindByIDForUpdate locks the row when called inside a transaction.
	FindByIDForUpdate(ctx context.Context, tx Tx, id string) (*model.SubscriptionChange, error)
	FindBySessionID(ctx context.Context, tx Tx, sessionID string) (*model.SubscriptionChange, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, kind model.ChangeKind, cutoff time.Time, limit int) ([]*model.SubscriptionChange, error)
}
