package repository

import (
	"context"

	"collab-billing/internal/domain/model"
)

type RefundRequestRepository interface {
	Save(ctx context.Context, tx Tx, r *model.RefundRequest) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.RefundRequest, error)
	// FindPendingByPayment returns ErrNotFound when no PENDING request exists for the payment.
	FindPendingByPayment(ctx context.Context, tx Tx, paymentID string) (*model.RefundRequest, error)
}
