package repository

import (
	"context"
	"time"

	"collab-billing/internal/domain/model"
)

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	// FindByEmail returns ErrNotFound for unknown addresses; matching is case-insensitive.
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.User, error)
	SetAutoRenew(ctx context.Context, tx Tx, userID string, enabled bool) error
	TouchLastSeen(ctx context.Context, tx Tx, userID string, at time.Time) error
	CountUsers(ctx context.Context, tx Tx) (int, error)
}

type PaymentMethodRepository interface {
	Save(ctx context.Context, tx Tx, m *model.PaymentMethod) error
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.PaymentMethod, error)
	// SetDefault clears the flag on every other method of the user.
	SetDefault(ctx context.Context, tx Tx, userID, methodID string) error
}
