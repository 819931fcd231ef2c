package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"collab-billing/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Payment is an append-only ledger entry. Only COMPLETED -> REFUNDED mutates it.
type Payment struct {
	ID              string
	UserID          string
	PlanID          string
	Amount          decimal.Decimal // major units
	Currency        string
	Status          PaymentStatus
	StripePaymentID *string // payment intent id
	TransactionID   *string // legacy processor reference
	DiscountAmount  decimal.Decimal
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewCompletedPayment records a confirmed charge.
func NewCompletedPayment(userID, planID string, amount decimal.Decimal, currency, processorRef string, meta map[string]any, now time.Time) (*Payment, error) {
	if userID == "" || planID == "" || amount.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	p := &Payment{
		ID:        uuid.NewString(),
		UserID:    userID,
		PlanID:    planID,
		Amount:    amount,
		Currency:  currency,
		Status:    PaymentStatusCompleted,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if processorRef != "" {
		p.StripePaymentID = &processorRef
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	return p, nil
}

// ProcessorRef returns the id the processor knows this payment by.
func (p *Payment) ProcessorRef() string {
	if p.StripePaymentID != nil && *p.StripePaymentID != "" {
		return *p.StripePaymentID
	}
	if p.TransactionID != nil && *p.TransactionID != "" {
		return *p.TransactionID
	}
	return ""
}

// MarkRefunded stores the processor refund on the ledger row.
func (p *Payment) MarkRefunded(refundID string, amount decimal.Decimal, now time.Time) error {
	if p.Status != PaymentStatusCompleted {
		return domain.ErrPaymentNotCompleted
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	p.Metadata["refund_id"] = refundID
	p.Metadata["refund_amount"] = amount.StringFixed(2)
	p.Metadata["refunded_at"] = now.UTC().Format(time.RFC3339)
	p.Status = PaymentStatusRefunded
	p.UpdatedAt = now
	return nil
}
