package adapter

import (
	"context"
)

// LineItem is one priced row of a checkout session. Amounts are in minor units.
type LineItem struct {
	Name        string
	Description string
	AmountCents int64
	Currency    string
	Quantity    int64
}

type CheckoutParams struct {
	LineItems      []LineItem
	Metadata       map[string]string
	SuccessURL     string
	CancelURL      string
	CustomerID     string
	ClientRef      string
	IdempotencyKey string
}

// CheckoutSession is a processor-hosted payment flow.
type CheckoutSession struct {
	ID  string
	URL string
}

// GatewayPayment is the provider-agnostic view of a session or payment intent.
type GatewayPayment struct {
	ID              string            `json:"id"`
	Object          string            `json:"object"` // checkout.session | payment_intent
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status,omitempty"`
	Paid            bool              `json:"paid"`
	Expired         bool              `json:"expired"`
	AmountCents     int64             `json:"amount"`
	Currency        string            `json:"currency"`
	PaymentIntentID string            `json:"payment_intent,omitempty"`
	Metadata        map[string]string `json:"metadata"`
}

type ChargeParams struct {
	CustomerID      string
	PaymentMethodID string
	AmountCents     int64
	Currency        string
	Description     string
	Metadata        map[string]string
	IdempotencyKey  string
}

type ChargeStatus string

const (
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargePending   ChargeStatus = "pending"
	ChargeFailed    ChargeStatus = "failed"
)

type ChargeResult struct {
	ID     string
	Status ChargeStatus
}

type RefundReason string

const (
	RefundReasonCustomerRequest RefundReason = "requested_by_customer"
	RefundReasonDuplicate       RefundReason = "duplicate"
	RefundReasonFraudulent      RefundReason = "fraudulent"
)

type RefundParams struct {
	PaymentIntentID string
	AmountCents     int64
	Reason          RefundReason
	Metadata        map[string]string
	IdempotencyKey  string
}

// RefundResult captures a minimal, provider-agnostic result of a refund request.
type RefundResult struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount"`
}

// WebhookEvent is a verified processor notification.
type WebhookEvent struct {
	ID      string
	Type    string
	Payment *GatewayPayment // set for checkout.session.* and payment_intent.* events
}

// PaymentGateway is the hex port for payment processors.
type PaymentGateway interface {
	Name() string

	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (GatewayPayment, error)
	RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (GatewayPayment, error)

	// Charge bills a stored payment method off-session.
	Charge(ctx context.Context, p ChargeParams) (ChargeResult, error)

	// CreateRefund refunds a captured payment intent.
	CreateRefund(ctx context.Context, p RefundParams) (RefundResult, error)

	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}
