package repository

import (
	"context"

	"collab-billing/internal/domain/model"
)

// PaymentRepository is the ledger port.
type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.Payment, error)
	// SumByPeriod sums COMPLETED payments over "week", "month" or "year", in cents.
	SumByPeriod(ctx context.Context, tx Tx, period string) (int64, error)
}
