package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopGateway)(nil)

// NoopGateway is an in-memory gateway for development and tests.
// Sessions stay open until MarkPaid or Expire is called; charges succeed unless declined.
type NoopGateway struct {
	mu       sync.Mutex
	seq      int64
	sessions map[string]*adapter.GatewayPayment
	intents  map[string]*adapter.GatewayPayment
	idem     map[string]string
	declined map[string]bool // payment method ids that always decline
	refunded map[string]int64
}

func NewNoopGateway() *NoopGateway {
	return &NoopGateway{
		sessions: make(map[string]*adapter.GatewayPayment),
		intents:  make(map[string]*adapter.GatewayPayment),
		idem:     make(map[string]string),
		declined: make(map[string]bool),
		refunded: make(map[string]int64),
	}
}

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_noop_%d", prefix, g.seq)
}

func (g *NoopGateway) CreateCheckoutSession(ctx context.Context, p adapter.CheckoutParams) (adapter.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.idem[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		return adapter.CheckoutSession{ID: id, URL: "https://example.test/pay/" + id}, nil
	}
	var total int64
	currency := ""
	for _, li := range p.LineItems {
		qty := li.Quantity
		if qty <= 0 {
			qty = 1
		}
		total += clampCents(li.AmountCents) * qty
		currency = li.Currency
	}
	id := g.next("cs")
	g.sessions[id] = &adapter.GatewayPayment{
		ID:            id,
		Object:        objectCheckoutSession,
		Status:        "open",
		PaymentStatus: "unpaid",
		AmountCents:   total,
		Currency:      currency,
		Metadata:      copyMeta(p.Metadata),
	}
	if p.IdempotencyKey != "" {
		g.idem[p.IdempotencyKey] = id
	}
	return adapter.CheckoutSession{ID: id, URL: "https://example.test/pay/" + id}, nil
}

// MarkPaid completes a session and attaches a succeeded payment intent.
func (g *NoopGateway) MarkPaid(sessionID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return "", domain.ErrNotFound
	}
	if s.PaymentIntentID == "" {
		pi := g.next("pi")
		g.intents[pi] = &adapter.GatewayPayment{
			ID: pi, Object: objectPaymentIntent, Status: "succeeded", Paid: true,
			AmountCents: s.AmountCents, Currency: s.Currency, PaymentIntentID: pi, Metadata: copyMeta(s.Metadata),
		}
		s.PaymentIntentID = pi
	}
	s.Status, s.PaymentStatus, s.Paid = "complete", "paid", true
	return s.PaymentIntentID, nil
}

func (g *NoopGateway) Expire(sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	s.Status, s.Expired = "expired", true
	return nil
}

// Decline makes every charge against paymentMethodID fail as a card decline.
func (g *NoopGateway) Decline(paymentMethodID string) {
	g.mu.Lock()
	g.declined[paymentMethodID] = true
	g.mu.Unlock()
}

func (g *NoopGateway) RetrieveSession(ctx context.Context, sessionID string) (adapter.GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return adapter.GatewayPayment{}, domain.ErrNotFound
	}
	return *s, nil
}

func (g *NoopGateway) RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (adapter.GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pi, ok := g.intents[paymentIntentID]
	if !ok {
		return adapter.GatewayPayment{}, domain.ErrNotFound
	}
	return *pi, nil
}

func (g *NoopGateway) Charge(ctx context.Context, p adapter.ChargeParams) (adapter.ChargeResult, error) {
	if p.PaymentMethodID == "" {
		return adapter.ChargeResult{}, domain.ErrNoPaymentMethod
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.idem[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		return adapter.ChargeResult{ID: id, Status: chargeResultOf(g.intents[id])}, nil
	}
	id := g.next("pi")
	pi := &adapter.GatewayPayment{
		ID: id, Object: objectPaymentIntent, Status: "succeeded", Paid: true,
		AmountCents: clampCents(p.AmountCents), Currency: p.Currency, PaymentIntentID: id, Metadata: copyMeta(p.Metadata),
	}
	if g.declined[p.PaymentMethodID] {
		pi.Status, pi.Paid = "requires_payment_method", false
	}
	g.intents[id] = pi
	if p.IdempotencyKey != "" {
		g.idem[p.IdempotencyKey] = id
	}
	if !pi.Paid {
		return adapter.ChargeResult{}, fmt.Errorf("charge: %w: card declined", domain.ErrPaymentDeclined)
	}
	return adapter.ChargeResult{ID: id, Status: adapter.ChargeSucceeded}, nil
}

func (g *NoopGateway) CreateRefund(ctx context.Context, p adapter.RefundParams) (adapter.RefundResult, error) {
	if p.PaymentIntentID == "" {
		return adapter.RefundResult{}, domain.ErrNoPaymentIntent
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.idem[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		return adapter.RefundResult{ID: id, Status: "succeeded", AmountCents: g.refunded[id]}, nil
	}
	amount := p.AmountCents
	if pi, ok := g.intents[p.PaymentIntentID]; ok && amount <= 0 {
		amount = pi.AmountCents
	}
	id := g.next("re")
	g.refunded[id] = amount
	if p.IdempotencyKey != "" {
		g.idem[p.IdempotencyKey] = id
	}
	return adapter.RefundResult{ID: id, Status: "succeeded", AmountCents: amount}, nil
}

// ParseWebhook accepts unsigned JSON of the form {"id","type","data":{...GatewayPayment}}.
func (g *NoopGateway) ParseWebhook(payload []byte, signature string) (adapter.WebhookEvent, error) {
	var ev struct {
		ID   string                  `json:"id"`
		Type string                  `json:"type"`
		Data *adapter.GatewayPayment `json:"data"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Type == "" {
		return adapter.WebhookEvent{}, domain.ErrInvalidWebhook
	}
	return adapter.WebhookEvent{ID: ev.ID, Type: ev.Type, Payment: ev.Data}, nil
}

func chargeResultOf(pi *adapter.GatewayPayment) adapter.ChargeStatus {
	if pi != nil && pi.Paid {
		return adapter.ChargeSucceeded
	}
	return adapter.ChargeFailed
}

func copyMeta(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
