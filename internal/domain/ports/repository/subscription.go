package repository

import (
	"context"
	"time"

	"collab-billing/internal/domain/model"
)

// RenewableQuery selects rows the renewal engine would attempt now. Rows whose
// retry budget is spent at Now, or whose owner has no payment method, are skipped.
type RenewableQuery struct {
	Cutoff time.Time // end_date strictly before
	Now    time.Time
	Retry  model.RetryPolicy
	Limit  int
}

// SubscriptionRepository is the port for subscription rows. Rows are never deleted.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, sub *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	// FindActiveByUser returns ErrNotFound when the user has no ACTIVE row.
	FindActiveByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	// FindLatestByUser returns the most recently created row regardless of status.
	FindLatestByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	// DeactivateAllActive moves every ACTIVE row of the user to status and returns how many changed.
	DeactivateAllActive(ctx context.Context, tx Tx, userID string, status model.SubscriptionStatus, now time.Time) (int, error)
	// FindRenewable lists ACTIVE auto-renewing paid rows that match q, oldest end_date first.
	FindRenewable(ctx context.Context, tx Tx, q RenewableQuery) ([]*model.Subscription, error)
	// FindExpiring lists ACTIVE rows ending within the next withinDays days.
	FindExpiring(ctx context.Context, tx Tx, withinDays int) ([]*model.Subscription, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Subscription, error)

	// CountActiveByPlan returns ACTIVE subscriptions keyed by plan type.
	CountActiveByPlan(ctx context.Context, tx Tx) (map[string]int, error)
}
