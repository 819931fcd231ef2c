package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"collab-billing/internal/domain"
)

type RefundStatus string

const (
	RefundStatusPending  RefundStatus = "PENDING"
	RefundStatusApproved RefundStatus = "APPROVED"
)

type RefundRequest struct {
	ID                    string
	UserID                string
	PaymentID             *string
	CurrentSubscriptionID *string
	Reason                string
	RefundAmount          *decimal.Decimal // nil means full refund
	Status                RefundStatus
	GatewayRefundID       *string
	ProcessedAt           *time.Time
	Notes                 string
	CreatedAt             time.Time
}

func NewRefundRequest(userID, paymentID string, subscriptionID *string, reason string, amount *decimal.Decimal) (*RefundRequest, error) {
	if userID == "" || paymentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if amount != nil && !amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	return &RefundRequest{
		ID:                    uuid.NewString(),
		UserID:                userID,
		PaymentID:             &paymentID,
		CurrentSubscriptionID: subscriptionID,
		Reason:                reason,
		RefundAmount:          amount,
		Status:                RefundStatusPending,
		CreatedAt:             time.Now(),
	}, nil
}

// AmountFor returns min(requested, paid), or paid when nothing was requested.
func (r *RefundRequest) AmountFor(paid decimal.Decimal) decimal.Decimal {
	if r.RefundAmount == nil || !r.RefundAmount.IsPositive() {
		return paid
	}
	return decimal.Min(*r.RefundAmount, paid)
}

func (r *RefundRequest) Approve(gatewayRefundID, notes string, now time.Time) error {
	if r.Status != RefundStatusPending {
		return domain.ErrRefundAlreadyProcessed
	}
	r.Status = RefundStatusApproved
	r.GatewayRefundID = &gatewayRefundID
	r.ProcessedAt = &now
	r.Notes = notes
	return nil
}
