package web

import (
	"time"

	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/adapter"
	"collab-billing/internal/usecase"
)

type planView struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Type            model.PlanType   `json:"type"`
	Price           string           `json:"price"`
	Currency        string           `json:"currency"`
	BillingInterval *string          `json:"billing_interval"`
	Limits          model.PlanLimits `json:"limits"`
}

func toPlanView(p *model.Plan) *planView {
	if p == nil {
		return nil
	}
	v := &planView{
		ID:       p.ID,
		Name:     p.Name,
		Type:     p.Type,
		Price:    p.Price.StringFixed(2),
		Currency: p.Currency,
		Limits:   p.Limits,
	}
	if p.BillingInterval != "" {
		iv := string(p.BillingInterval)
		v.BillingInterval = &iv
	}
	return v
}

type subscriptionView struct {
	ID                  string                   `json:"id"`
	UserID              string                   `json:"user_id"`
	PlanID              string                   `json:"plan_id"`
	Status              model.SubscriptionStatus `json:"status"`
	StartDate           time.Time                `json:"start_date"`
	EndDate             *time.Time               `json:"end_date"`
	AutoRenew           bool                     `json:"auto_renew"`
	PaymentMethodID     *string                  `json:"payment_method_id"`
	Usage               model.UsageCounters      `json:"usage"`
	LastRenewalAttempt  *time.Time               `json:"last_renewal_attempt"`
	RenewalFailureCount int                      `json:"renewal_failure_count"`
}

func toSubscriptionView(s *model.Subscription) *subscriptionView {
	if s == nil {
		return nil
	}
	return &subscriptionView{
		ID:                  s.ID,
		UserID:              s.UserID,
		PlanID:              s.PlanID,
		Status:              s.Status,
		StartDate:           s.StartDate,
		EndDate:             s.EndDate,
		AutoRenew:           s.AutoRenew,
		PaymentMethodID:     s.PaymentMethodID,
		Usage:               s.Usage,
		LastRenewalAttempt:  s.LastRenewalAttempt,
		RenewalFailureCount: s.RenewalFailureCount,
	}
}

type currentView struct {
	Subscription   *subscriptionView `json:"subscription"`
	Plan           *planView         `json:"plan"`
	IsExpiringSoon bool              `json:"is_expiring_soon"`
}

func toCurrentView(c *usecase.CurrentSubscription) *currentView {
	if c == nil {
		return nil
	}
	return &currentView{
		Subscription:   toSubscriptionView(c.Subscription),
		Plan:           toPlanView(c.Plan),
		IsExpiringSoon: c.IsExpiringSoon,
	}
}

type autoRenewView struct {
	AutoRenewEnabled    bool         `json:"auto_renew_enabled"`
	HasPaymentMethod    bool         `json:"has_payment_method"`
	CurrentSubscription *currentView `json:"current_subscription"`
}

func toAutoRenewView(a *usecase.AutoRenewStatus) autoRenewView {
	return autoRenewView{
		AutoRenewEnabled:    a.AutoRenewEnabled,
		HasPaymentMethod:    a.HasPaymentMethod,
		CurrentSubscription: toCurrentView(a.CurrentSubscription),
	}
}

type paymentMethodView struct {
	ID          string    `json:"id"`
	ProcessorID string    `json:"processor_id"`
	Brand       string    `json:"brand"`
	Last4       string    `json:"last4"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

func toPaymentMethodView(m *model.PaymentMethod) paymentMethodView {
	return paymentMethodView{
		ID:          m.ID,
		ProcessorID: m.ProcessorID,
		Brand:       m.Brand,
		Last4:       m.Last4,
		IsDefault:   m.IsDefault,
		CreatedAt:   m.CreatedAt,
	}
}

type refundRequestView struct {
	ID           string             `json:"id"`
	PaymentID    *string            `json:"payment_id"`
	Reason       string             `json:"reason"`
	RefundAmount *string            `json:"refund_amount"`
	Status       model.RefundStatus `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
}

func toRefundRequestView(r *model.RefundRequest) refundRequestView {
	v := refundRequestView{
		ID:        r.ID,
		PaymentID: r.PaymentID,
		Reason:    r.Reason,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
	if r.RefundAmount != nil {
		a := r.RefundAmount.StringFixed(2)
		v.RefundAmount = &a
	}
	return v
}

type refundOutcomeView struct {
	Success         bool                 `json:"success"`
	Refund          adapter.RefundResult `json:"refund"`
	NewSubscription *subscriptionView    `json:"newSubscription"`
}

type paymentStatusView struct {
	Payment      adapter.GatewayPayment `json:"payment"`
	Subscription *subscriptionView      `json:"subscription,omitempty"`
	Applied      bool                   `json:"applied"`
}

func toPaymentStatusView(p *usecase.PaymentStatus) paymentStatusView {
	return paymentStatusView{Payment: p.Payment, Subscription: toSubscriptionView(p.Subscription), Applied: p.Applied}
}

type userView struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	AutoRenewEnabled bool       `json:"auto_renew_enabled"`
	LastSeenAt       *time.Time `json:"last_seen_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toUserView(u *model.User) userView {
	return userView{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		AutoRenewEnabled: u.AutoRenewEnabled,
		LastSeenAt:       u.LastSeenAt,
		CreatedAt:        u.CreatedAt,
	}
}
