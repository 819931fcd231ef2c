//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/adapter"
	"collab-billing/internal/domain/ports/repository"
	"collab-billing/internal/infra/i18n"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

// fixedNow is the wall clock every use case under test sees.
var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func ptr[T any](v T) *T { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway (adapter) ----

type MockPaymentGateway struct {
	mu sync.Mutex

	CreateCheckoutSessionFunc func(ctx context.Context, p adapter.CheckoutParams) (adapter.CheckoutSession, error)
	RetrieveSessionFunc       func(ctx context.Context, id string) (adapter.GatewayPayment, error)
	RetrievePaymentIntentFunc func(ctx context.Context, id string) (adapter.GatewayPayment, error)
	ChargeFunc                func(ctx context.Context, p adapter.ChargeParams) (adapter.ChargeResult, error)
	CreateRefundFunc          func(ctx context.Context, p adapter.RefundParams) (adapter.RefundResult, error)
	ParseWebhookFunc          func(payload []byte, signature string) (adapter.WebhookEvent, error)

	// tracing of invocations
	Calls struct {
		Checkout []adapter.CheckoutParams
		Charge   []adapter.ChargeParams
		Refund   []adapter.RefundParams
		Retrieve int
	}
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string { return "mockpay" }

func (m *MockPaymentGateway) CreateCheckoutSession(ctx context.Context, p adapter.CheckoutParams) (adapter.CheckoutSession, error) {
	m.mu.Lock()
	m.Calls.Checkout = append(m.Calls.Checkout, p)
	m.mu.Unlock()
	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(ctx, p)
	}
	id := "cs_test_" + uuid.NewString()
	return adapter.CheckoutSession{ID: id, URL: "https://checkout.example/" + id}, nil
}

func (m *MockPaymentGateway) RetrieveSession(ctx context.Context, id string) (adapter.GatewayPayment, error) {
	m.mu.Lock()
	m.Calls.Retrieve++
	m.mu.Unlock()
	if m.RetrieveSessionFunc != nil {
		return m.RetrieveSessionFunc(ctx, id)
	}
	return adapter.GatewayPayment{ID: id, Object: "checkout.session", Status: "open", PaymentStatus: "unpaid"}, nil
}

func (m *MockPaymentGateway) RetrievePaymentIntent(ctx context.Context, id string) (adapter.GatewayPayment, error) {
	m.mu.Lock()
	m.Calls.Retrieve++
	m.mu.Unlock()
	if m.RetrievePaymentIntentFunc != nil {
		return m.RetrievePaymentIntentFunc(ctx, id)
	}
	return adapter.GatewayPayment{ID: id, Object: "payment_intent", Status: "requires_payment_method"}, nil
}

func (m *MockPaymentGateway) Charge(ctx context.Context, p adapter.ChargeParams) (adapter.ChargeResult, error) {
	m.mu.Lock()
	m.Calls.Charge = append(m.Calls.Charge, p)
	m.mu.Unlock()
	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, p)
	}
	return adapter.ChargeResult{ID: "pi_" + uuid.NewString(), Status: adapter.ChargeSucceeded}, nil
}

func (m *MockPaymentGateway) CreateRefund(ctx context.Context, p adapter.RefundParams) (adapter.RefundResult, error) {
	m.mu.Lock()
	m.Calls.Refund = append(m.Calls.Refund, p)
	m.mu.Unlock()
	if m.CreateRefundFunc != nil {
		return m.CreateRefundFunc(ctx, p)
	}
	return adapter.RefundResult{ID: "re_" + p.IdempotencyKey, Status: "succeeded", AmountCents: p.AmountCents}, nil
}

func (m *MockPaymentGateway) ParseWebhook(payload []byte, signature string) (adapter.WebhookEvent, error) {
	if m.ParseWebhookFunc != nil {
		return m.ParseWebhookFunc(payload, signature)
	}
	return adapter.WebhookEvent{}, domain.ErrInvalidWebhook
}

// =============================
// Repositories
// =============================

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu   sync.Mutex
	byID map[string]*model.User

	SaveFunc         func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByEmailFunc  func(ctx context.Context, tx repository.Tx, email string) (*model.User, error)
	SetAutoRenewFunc func(ctx context.Context, tx repository.Tx, userID string, enabled bool) error
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{byID: map[string]*model.User{}}
}

func (r *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, u)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	if cp.ID == "" {
		cp.ID = uuid.NewString()
		u.ID = cp.ID
	}
	r.byID[cp.ID] = &cp
	return nil
}

func (r *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MockUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	if r.FindByEmailFunc != nil {
		return r.FindByEmailFunc(ctx, tx, email)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockUserRepo) SetAutoRenew(ctx context.Context, tx repository.Tx, userID string, enabled bool) error {
	if r.SetAutoRenewFunc != nil {
		return r.SetAutoRenewFunc(ctx, tx, userID, enabled)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.AutoRenewEnabled = enabled
	return nil
}

func (r *MockUserRepo) TouchLastSeen(ctx context.Context, tx repository.Tx, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.LastSeenAt = &at
	return nil
}

func (r *MockUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID), nil
}

// ---- Mock PaymentMethodRepository ----

type MockPaymentMethodRepo struct {
	mu   sync.Mutex
	data []*model.PaymentMethod

	ListByUserFunc func(ctx context.Context, tx repository.Tx, userID string) ([]*model.PaymentMethod, error)
}

var _ repository.PaymentMethodRepository = (*MockPaymentMethodRepo)(nil)

func NewMockPaymentMethodRepo() *MockPaymentMethodRepo { return &MockPaymentMethodRepo{} }

func (r *MockPaymentMethodRepo) Save(ctx context.Context, tx repository.Tx, m *model.PaymentMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.data = append(r.data, &cp)
	return nil
}

func (r *MockPaymentMethodRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.PaymentMethod, error) {
	if r.ListByUserFunc != nil {
		return r.ListByUserFunc(ctx, tx, userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PaymentMethod
	for _, m := range r.data {
		if m.UserID == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockPaymentMethodRepo) SetDefault(ctx context.Context, tx repository.Tx, userID, methodID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for _, m := range r.data {
		if m.UserID != userID {
			continue
		}
		m.IsDefault = m.ID == methodID
		found = found || m.IsDefault
	}
	if !found {
		return domain.ErrNotFound
	}
	return nil
}

// ---- Mock PlanRepository ----

type MockPlanRepo struct {
	mu   sync.Mutex
	data map[string]*model.Plan

	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error)
}

var _ repository.PlanRepository = (*MockPlanRepo)(nil)

func NewMockPlanRepo() *MockPlanRepo {
	return &MockPlanRepo{data: map[string]*model.Plan{}}
}

func (r *MockPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	r.data[p.ID] = &cp
	return nil
}

func (r *MockPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MockPlanRepo) FindByType(ctx context.Context, tx repository.Tx, typ model.PlanType) (*model.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.Plan
	for _, p := range r.data {
		if p.Type == typ && (best == nil || p.Price.LessThan(best.Price)) {
			best = p
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *MockPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Plan, 0, len(r.data))
	for _, p := range r.data {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- Mock SubscriptionRepository ----

// MockSubscriptionRepo rejects a second ACTIVE row per user the way the partial unique index does.
type MockSubscriptionRepo struct {
	mu   sync.Mutex
	data map[string]*model.Subscription
	seq  map[string]int
	next int

	SaveFunc              func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
	FindActiveByUserFunc  func(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error)
	FindExpiringFunc      func(ctx context.Context, tx repository.Tx, within int) ([]*model.Subscription, error)
	FindRenewableFunc     func(ctx context.Context, tx repository.Tx, q repository.RenewableQuery) ([]*model.Subscription, error)
	CountActiveByPlanFunc func(ctx context.Context, tx repository.Tx) (map[string]int, error)
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{data: map[string]*model.Subscription{}, seq: map[string]int{}}
}

func (r *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == model.SubscriptionStatusActive {
		for _, o := range r.data {
			if o.UserID == s.UserID && o.ID != s.ID && o.Status == model.SubscriptionStatusActive {
				return domain.ErrActiveSubscriptionExists
			}
		}
	}
	if _, ok := r.seq[s.ID]; !ok {
		r.next++
		r.seq[s.ID] = r.next
	}
	cp := *s
	r.data[s.ID] = &cp
	return nil
}

func (r *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MockSubscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	if r.FindActiveByUserFunc != nil {
		return r.FindActiveByUserFunc(ctx, tx, userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.data {
		if s.UserID == userID && s.Status == model.SubscriptionStatusActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.Subscription
	for _, s := range r.data {
		if s.UserID == userID && (best == nil || r.seq[s.ID] > r.seq[best.ID]) {
			best = s
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *MockSubscriptionRepo) DeactivateAllActive(ctx context.Context, tx repository.Tx, userID string, status model.SubscriptionStatus, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.data {
		if s.UserID == userID && s.Status == model.SubscriptionStatusActive {
			if err := s.TransitionTo(status, now); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (r *MockSubscriptionRepo) FindRenewable(ctx context.Context, tx repository.Tx, q repository.RenewableQuery) ([]*model.Subscription, error) {
	if r.FindRenewableFunc != nil {
		return r.FindRenewableFunc(ctx, tx, q)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.data {
		if !s.IsActive() || !s.AutoRenew || s.EndDate == nil || !s.EndDate.Before(q.Cutoff) {
			continue
		}
		if q.Retry.Exhausted(s.RenewalFailureCount, s.LastRenewalAttempt, q.Now) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *MockSubscriptionRepo) FindExpiring(ctx context.Context, tx repository.Tx, within int) ([]*model.Subscription, error) {
	if r.FindExpiringFunc != nil {
		return r.FindExpiringFunc(ctx, tx, within)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	limit := fixedNow.Add(time.Duration(within) * 24 * time.Hour)
	var out []*model.Subscription
	for _, s := range r.data {
		if s.IsActive() && s.EndDate != nil && s.EndDate.After(fixedNow) && !s.EndDate.After(limit) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockSubscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.data {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.seq[out[i].ID] < r.seq[out[j].ID] })
	return out, nil
}

func (r *MockSubscriptionRepo) CountActiveByPlan(ctx context.Context, tx repository.Tx) (map[string]int, error) {
	if r.CountActiveByPlanFunc != nil {
		return r.CountActiveByPlanFunc(ctx, tx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int{}
	for _, s := range r.data {
		if s.IsActive() {
			out[s.PlanID]++
		}
	}
	return out, nil
}

// activeCount is a test helper for the one-ACTIVE-row property.
func (r *MockSubscriptionRepo) activeCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.data {
		if s.UserID == userID && s.IsActive() {
			n++
		}
	}
	return n
}

func (r *MockSubscriptionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu   sync.Mutex
	data map[string]*model.Payment

	SaveFunc        func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	SumByPeriodFunc func(ctx context.Context, tx repository.Tx, period string) (int64, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: map[string]*model.Payment{}}
}

func (r *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	r.data[p.ID] = &cp
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MockPaymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockPaymentRepo) SumByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	if r.SumByPeriodFunc != nil {
		return r.SumByPeriodFunc(ctx, tx, period)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, p := range r.data {
		if p.Status == model.PaymentStatusCompleted {
			sum += model.ToCents(p.Amount)
		}
	}
	return sum, nil
}

func (r *MockPaymentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// ---- Mock RefundRequestRepository ----

type MockRefundRepo struct {
	mu   sync.Mutex
	data map[string]*model.RefundRequest

	SaveFunc func(ctx context.Context, tx repository.Tx, r *model.RefundRequest) error
}

var _ repository.RefundRequestRepository = (*MockRefundRepo)(nil)

func NewMockRefundRepo() *MockRefundRepo {
	return &MockRefundRepo{data: map[string]*model.RefundRequest{}}
}

func (r *MockRefundRepo) Save(ctx context.Context, tx repository.Tx, req *model.RefundRequest) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, req)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	r.data[req.ID] = &cp
	return nil
}

func (r *MockRefundRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RefundRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *MockRefundRepo) FindPendingByPayment(ctx context.Context, tx repository.Tx, paymentID string) (*model.RefundRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.data {
		if req.PaymentID != nil && *req.PaymentID == paymentID && req.Status == model.RefundStatusPending {
			cp := *req
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ---- Mock SubscriptionChangeRepository ----

type MockChangeRepo struct {
	mu   sync.Mutex
	data map[string]*model.SubscriptionChange

	SaveFunc func(ctx context.Context, tx repository.Tx, c *model.SubscriptionChange) error
}

var _ repository.SubscriptionChangeRepository = (*MockChangeRepo)(nil)

func NewMockChangeRepo() *MockChangeRepo {
	return &MockChangeRepo{data: map[string]*model.SubscriptionChange{}}
}

func (r *MockChangeRepo) Save(ctx context.Context, tx repository.Tx, c *model.SubscriptionChange) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, c)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.data[c.ID] = &cp
	return nil
}

func (r *MockChangeRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MockChangeRepo) FindBySessionID(ctx context.Context, tx repository.Tx, sessionID string) (*model.SubscriptionChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.data {
		if c.SessionID != nil && *c.SessionID == sessionID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockChangeRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, kind model.ChangeKind, cutoff time.Time, limit int) ([]*model.SubscriptionChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.SubscriptionChange
	for _, c := range r.data {
		if c.Kind == kind && c.Status == model.ChangeStatusPending && c.CreatedAt.Before(cutoff) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- Mock OutboxRepository ----

type MockOutboxRepo struct {
	mu   sync.Mutex
	Msgs []*model.OutboxMessage

	EnqueueFunc func(ctx context.Context, tx repository.Tx, m *model.OutboxMessage) error
}

var _ repository.OutboxRepository = (*MockOutboxRepo)(nil)

func NewMockOutboxRepo() *MockOutboxRepo { return &MockOutboxRepo{} }

func (r *MockOutboxRepo) Enqueue(ctx context.Context, tx repository.Tx, m *model.OutboxMessage) error {
	if r.EnqueueFunc != nil {
		return r.EnqueueFunc(ctx, tx, m)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.Msgs = append(r.Msgs, &cp)
	return nil
}

func (r *MockOutboxRepo) Claim(ctx context.Context, tx repository.Tx, now, leaseUntil time.Time, limit int) ([]*model.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.OutboxMessage
	for _, m := range r.Msgs {
		if limit > 0 && len(out) == limit {
			break
		}
		if m.SentAt == nil && !m.NextAttemptAt.After(now) {
			m.NextAttemptAt = leaseUntil
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *MockOutboxRepo) MarkSent(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.Msgs {
		if m.ID == id {
			m.SentAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *MockOutboxRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, attempts int, lastErr string, next time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.Msgs {
		if m.ID == id {
			m.Attempts = attempts
			m.LastError = &lastErr
			m.NextAttemptAt = next
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *MockOutboxRepo) emails() []model.Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Email, 0, len(r.Msgs))
	for _, m := range r.Msgs {
		e, _ := m.Email()
		out = append(out, e)
	}
	return out
}

// ---- Mock NotificationLogRepository ----

type MockNotificationLogRepo struct {
	mu      sync.Mutex
	entries map[string]struct{}
}

var _ repository.NotificationLogRepository = (*MockNotificationLogRepo)(nil)

func NewMockNotificationLogRepo() *MockNotificationLogRepo {
	return &MockNotificationLogRepo{entries: map[string]struct{}{}}
}

func notifKey(subID, kind string, days int) string {
	return subID + "|" + kind + "|" + strconv.Itoa(days)
}

func (r *MockNotificationLogRepo) Claim(ctx context.Context, tx repository.Tx, subscriptionID, userID, kind string, thresholdDays int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := notifKey(subscriptionID, kind, thresholdDays)
	if _, ok := r.entries[k]; ok {
		return false, nil
	}
	r.entries[k] = struct{}{}
	return true, nil
}

// ---- Mock StatusCache ----

type MockStatusCache struct {
	mu   sync.Mutex
	data map[string]model.UserStatus
	TTLs map[string]time.Duration

	Gets, Sets, Invalidations int
}

var _ repository.StatusCache = (*MockStatusCache)(nil)

func NewMockStatusCache() *MockStatusCache {
	return &MockStatusCache{data: map[string]model.UserStatus{}, TTLs: map[string]time.Duration{}}
}

func (c *MockStatusCache) Get(ctx context.Context, userID string) (*model.UserStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gets++
	st, ok := c.data[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &st, nil
}

func (c *MockStatusCache) Set(ctx context.Context, status *model.UserStatus, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sets++
	c.data[status.UserID] = *status
	c.TTLs[status.UserID] = ttl
	return nil
}

func (c *MockStatusCache) Invalidate(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Invalidations++
	delete(c.data, userID)
	return nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error

	mu    sync.Mutex
	Opts  []pgx.TxOptions
	Calls int
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	m.Calls++
	m.Opts = append(m.Opts, txOpt)
	m.mu.Unlock()
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Mock UserLocker ----

// MockUserLocker records lock acquisitions. The in-memory repos need no real lock because the
// mock transaction manager runs callbacks inline.
type MockUserLocker struct {
	mu     sync.Mutex
	Locked []string
	Err    error
}

var _ repository.UserLocker = (*MockUserLocker)(nil)

func (l *MockUserLocker) LockUser(ctx context.Context, tx repository.Tx, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	l.Locked = append(l.Locked, userID)
	return nil
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// --- Translator

func newTestTranslator() *i18n.Translator {
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		// The embedded english locale is part of the binary; fall back to an empty one.
		tr, _ = i18n.NewTranslator(fstest.MapFS{"locales/en.yaml": {Data: []byte("{}")}}, "en")
	}
	return tr
}

// errBoom is a generic infrastructure failure.
var errBoom = errors.New("boom")
