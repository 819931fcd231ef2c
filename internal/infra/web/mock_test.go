//go:build !integration

package web

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
	"collab-billing/internal/usecase"
)

// --- Mock use cases; unset funcs answer ErrNotFound ---

type mockSubUC struct {
	usecase.SubscriptionUseCase

	GetCurrentFunc      func(ctx context.Context, userID string) (*usecase.CurrentSubscription, error)
	UpgradeFunc         func(ctx context.Context, req usecase.UpgradeRequest) (*usecase.UpgradeQuote, error)
	SwitchToFreeFunc    func(ctx context.Context, userID string) (*model.Subscription, error)
	ToggleAutoRenewFunc func(ctx context.Context, userID string, enabled bool) (*usecase.AutoRenewStatus, error)
	GetAutoRenewFunc    func(ctx context.Context, userID string) (*usecase.AutoRenewStatus, error)
	RenewFunc           func(ctx context.Context, userID string, opts usecase.RenewOptions) (*usecase.RenewalResult, error)
	TrackUsageFunc      func(ctx context.Context, userID string, c model.UsageCounter, delta int) (*model.Subscription, error)
}

func (m *mockSubUC) GetCurrent(ctx context.Context, userID string) (*usecase.CurrentSubscription, error) {
	if m.GetCurrentFunc != nil {
		return m.GetCurrentFunc(ctx, userID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubUC) Upgrade(ctx context.Context, req usecase.UpgradeRequest) (*usecase.UpgradeQuote, error) {
	if m.UpgradeFunc != nil {
		return m.UpgradeFunc(ctx, req)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubUC) SwitchToFreePlan(ctx context.Context, userID string) (*model.Subscription, error) {
	if m.SwitchToFreeFunc != nil {
		return m.SwitchToFreeFunc(ctx, userID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubUC) SwitchToFreePlanTx(ctx context.Context, tx repository.Tx, userID string, now time.Time) (*model.Subscription, error) {
	return m.SwitchToFreePlan(ctx, userID)
}

func (m *mockSubUC) ToggleAutoRenew(ctx context.Context, userID string, enabled bool) (*usecase.AutoRenewStatus, error) {
	if m.ToggleAutoRenewFunc != nil {
		return m.ToggleAutoRenewFunc(ctx, userID, enabled)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubUC) GetAutoRenewStatus(ctx context.Context, userID string) (*usecase.AutoRenewStatus, error) {
	if m.GetAutoRenewFunc != nil {
		return m.GetAutoRenewFunc(ctx, userID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubUC) Renew(ctx context.Context, userID string, opts usecase.RenewOptions) (*usecase.RenewalResult, error) {
	if m.RenewFunc != nil {
		return m.RenewFunc(ctx, userID, opts)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubUC) TrackUsage(ctx context.Context, userID string, c model.UsageCounter, delta int) (*model.Subscription, error) {
	if m.TrackUsageFunc != nil {
		return m.TrackUsageFunc(ctx, userID, c, delta)
	}
	return nil, domain.ErrNotFound
}

type mockPayUC struct {
	usecase.PaymentUseCase

	CheckStatusFunc   func(ctx context.Context, userID string, ref usecase.PaymentRef) (*usecase.PaymentStatus, error)
	HandleWebhookFunc func(ctx context.Context, payload []byte, sig string) (*usecase.PaymentStatus, error)
}

func (m *mockPayUC) CheckStatus(ctx context.Context, userID string, ref usecase.PaymentRef) (*usecase.PaymentStatus, error) {
	return m.CheckStatusFunc(ctx, userID, ref)
}

func (m *mockPayUC) HandleWebhook(ctx context.Context, payload []byte, sig string) (*usecase.PaymentStatus, error) {
	return m.HandleWebhookFunc(ctx, payload, sig)
}

type mockRefundUC struct {
	CreateRequestFunc func(ctx context.Context, userID, paymentID, reason string, amount *decimal.Decimal) (*model.RefundRequest, error)
	RefundFunc        func(ctx context.Context, id string) (*usecase.RefundOutcome, error)
}

func (m *mockRefundUC) CreateRequest(ctx context.Context, userID, paymentID, reason string, amount *decimal.Decimal) (*model.RefundRequest, error) {
	return m.CreateRequestFunc(ctx, userID, paymentID, reason, amount)
}

func (m *mockRefundUC) Refund(ctx context.Context, id string) (*usecase.RefundOutcome, error) {
	return m.RefundFunc(ctx, id)
}

type mockPlanUC struct {
	plans   []*model.Plan
	created *model.Plan
}

func (m *mockPlanUC) Create(ctx context.Context, plan *model.Plan) error {
	if plan.Name == "" || !plan.Type.Valid() {
		return domain.ErrInvalidArgument
	}
	m.created = plan
	return nil
}

func (m *mockPlanUC) Get(ctx context.Context, id string) (*model.Plan, error) {
	for _, p := range m.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, domain.ErrPlanNotFound
}

func (m *mockPlanUC) List(ctx context.Context) ([]*model.Plan, error) { return m.plans, nil }

type mockStatusUC struct {
	usecase.StatusUseCase
	status *model.UserStatus
	beats  []string
}

func (m *mockStatusUC) GetStatus(ctx context.Context, userID string) (*model.UserStatus, error) {
	st := *m.status
	st.UserID = userID
	return &st, nil
}

func (m *mockStatusUC) Heartbeat(ctx context.Context, userID string) (*usecase.HeartbeatResult, error) {
	m.beats = append(m.beats, userID)
	return &usecase.HeartbeatResult{Status: m.status, NextHeartbeatMs: 600000}, nil
}

type mockStatsUC struct{}

func (mockStatsUC) Overview(ctx context.Context) (*usecase.Overview, error) {
	return &usecase.Overview{
		Users:        3,
		ActiveByPlan: map[string]int{"FREE": 2, "PRO": 1},
		Revenue:      map[string]string{"week": "12.00", "month": "24.00", "year": "24.00"},
	}, nil
}

type mockLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.keys = append(m.keys, key)
	return m.allow, m.err
}

type mockUserUC struct {
	users   map[string]*model.User
	methods []*model.PaymentMethod
}

func (m *mockUserUC) RegisterOrFetch(ctx context.Context, email, name string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	u := &model.User{ID: "u-new", Email: email, Name: name}
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUserUC) Get(ctx context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockUserUC) AddPaymentMethod(ctx context.Context, userID string, in usecase.PaymentMethodInput) (*model.PaymentMethod, error) {
	if in.ProcessorID == "" {
		return nil, domain.ErrInvalidArgument
	}
	pm := &model.PaymentMethod{ID: "pm-row", UserID: userID, ProcessorID: in.ProcessorID, Brand: in.Brand, Last4: in.Last4, IsDefault: len(m.methods) == 0}
	m.methods = append(m.methods, pm)
	return pm, nil
}

func (m *mockUserUC) ListPaymentMethods(ctx context.Context, userID string) ([]*model.PaymentMethod, error) {
	var out []*model.PaymentMethod
	for _, pm := range m.methods {
		if pm.UserID == userID {
			out = append(out, pm)
		}
	}
	return out, nil
}
