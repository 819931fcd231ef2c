package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*StripeGateway)(nil)

const (
	objectCheckoutSession = "checkout.session"
	objectPaymentIntent   = "payment_intent"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	// APIURL points the client at stripe-mock or a test server when set.
	APIURL     string
	HTTPClient *http.Client
}

// StripeGateway implements adapter.PaymentGateway with stripe-go per-resource clients.
type StripeGateway struct {
	sessions      checksession.Client
	intents       paymentintent.Client
	refunds       refund.Client
	webhookSecret string
	successURL    string
	cancelURL     string
	log           *zerolog.Logger
}

func NewStripeGateway(cfg StripeConfig, logger *zerolog.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key empty")
	}
	l := logger.With().Str("component", "StripeGateway").Logger()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	bc := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     stripeLogger{log: &l},
		MaxNetworkRetries: stripe.Int64(2),
	}
	if cfg.APIURL != "" {
		bc.URL = stripe.String(strings.TrimRight(cfg.APIURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, bc)

	return &StripeGateway{
		sessions:      checksession.Client{B: backend, Key: cfg.SecretKey},
		intents:       paymentintent.Client{B: backend, Key: cfg.SecretKey},
		refunds:       refund.Client{B: backend, Key: cfg.SecretKey},
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		log:           &l,
	}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p adapter.CheckoutParams) (adapter.CheckoutSession, error) {
	if len(p.LineItems) == 0 {
		return adapter.CheckoutSession{}, domain.ErrInvalidArgument
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(firstNonEmpty(p.SuccessURL, g.successURL)),
		CancelURL:         stripe.String(firstNonEmpty(p.CancelURL, g.cancelURL)),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{},
	}
	params.Context = ctx
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	if p.ClientRef != "" {
		params.ClientReferenceID = stripe.String(p.ClientRef)
	}
	for _, li := range p.LineItems {
		qty := li.Quantity
		if qty <= 0 {
			qty = 1
		}
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(li.Name)}
		if li.Description != "" {
			product.Description = stripe.String(li.Description)
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(qty),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(strings.ToLower(li.Currency)),
				UnitAmount:  stripe.Int64(clampCents(li.AmountCents)),
				ProductData: product,
			},
		})
	}
	// The intent travels on the session and its payment intent so either object can be resolved later.
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
		params.PaymentIntentData.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	s, err := g.sessions.New(params)
	if err != nil {
		return adapter.CheckoutSession{}, g.mapError("create checkout session", err)
	}
	g.log.Debug().Str("session_id", s.ID).Msg("checkout session created")
	return adapter.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) RetrieveSession(ctx context.Context, sessionID string) (adapter.GatewayPayment, error) {
	if sessionID == "" {
		return adapter.GatewayPayment{}, domain.ErrInvalidArgument
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := g.sessions.Get(sessionID, params)
	if err != nil {
		return adapter.GatewayPayment{}, g.mapError("retrieve session", err)
	}
	return fromSession(s), nil
}

func (g *StripeGateway) RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (adapter.GatewayPayment, error) {
	if paymentIntentID == "" {
		return adapter.GatewayPayment{}, domain.ErrInvalidArgument
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.intents.Get(paymentIntentID, params)
	if err != nil {
		return adapter.GatewayPayment{}, g.mapError("retrieve payment intent", err)
	}
	return fromPaymentIntent(pi), nil
}

func (g *StripeGateway) Charge(ctx context.Context, p adapter.ChargeParams) (adapter.ChargeResult, error) {
	if p.PaymentMethodID == "" {
		return adapter.ChargeResult{}, domain.ErrNoPaymentMethod
	}
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(clampCents(p.AmountCents)),
		Currency:      stripe.String(strings.ToLower(p.Currency)),
		PaymentMethod: stripe.String(p.PaymentMethodID),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
	}
	params.Context = ctx
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return adapter.ChargeResult{}, g.mapError("charge", err)
	}
	return adapter.ChargeResult{ID: pi.ID, Status: chargeStatus(pi.Status)}, nil
}

func (g *StripeGateway) CreateRefund(ctx context.Context, p adapter.RefundParams) (adapter.RefundResult, error) {
	if p.PaymentIntentID == "" {
		return adapter.RefundResult{}, domain.ErrNoPaymentIntent
	}
	params := &stripe.RefundParams{PaymentIntent: stripe.String(p.PaymentIntentID)}
	params.Context = ctx
	if p.AmountCents > 0 {
		params.Amount = stripe.Int64(p.AmountCents)
	}
	if p.Reason != "" {
		params.Reason = stripe.String(string(p.Reason))
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	r, err := g.refunds.New(params)
	if err != nil {
		return adapter.RefundResult{}, g.mapError("create refund", err)
	}
	return adapter.RefundResult{ID: r.ID, Status: string(r.Status), AmountCents: r.Amount}, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (adapter.WebhookEvent, error) {
	if g.webhookSecret == "" {
		return adapter.WebhookEvent{}, fmt.Errorf("%w: webhook secret not configured", domain.ErrInvalidWebhook)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return adapter.WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidWebhook, err)
	}

	out := adapter.WebhookEvent{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}
	switch {
	case strings.HasPrefix(out.Type, "checkout.session."):
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return adapter.WebhookEvent{}, fmt.Errorf("%w: decode session: %v", domain.ErrInvalidWebhook, err)
		}
		gp := fromSession(&s)
		out.Payment = &gp
	case strings.HasPrefix(out.Type, "payment_intent."):
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return adapter.WebhookEvent{}, fmt.Errorf("%w: decode payment intent: %v", domain.ErrInvalidWebhook, err)
		}
		gp := fromPaymentIntent(&pi)
		out.Payment = &gp
	}
	return out, nil
}

// mapError classifies stripe failures: card errors are declines, everything else is a gateway error.
func (g *StripeGateway) mapError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		g.log.Warn().Str("op", op).Str("type", string(se.Type)).Str("code", string(se.Code)).
			Int("http_status", se.HTTPStatusCode).Str("request_id", se.RequestID).Msg("stripe error")
		if se.Type == stripe.ErrorTypeCard {
			return fmt.Errorf("%s: %w: %s", op, domain.ErrPaymentDeclined, se.Msg)
		}
		if se.HTTPStatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return fmt.Errorf("%s: %w: %s", op, domain.ErrGateway, se.Msg)
	}
	g.log.Error().Err(err).Str("op", op).Msg("stripe transport error")
	return fmt.Errorf("%s: %w: %v", op, domain.ErrGateway, err)
}

func fromSession(s *stripe.CheckoutSession) adapter.GatewayPayment {
	gp := adapter.GatewayPayment{
		ID:            s.ID,
		Object:        objectCheckoutSession,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		Paid:          s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Expired:       s.Status == stripe.CheckoutSessionStatusExpired,
		AmountCents:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		gp.PaymentIntentID = s.PaymentIntent.ID
	}
	return gp
}

func fromPaymentIntent(pi *stripe.PaymentIntent) adapter.GatewayPayment {
	return adapter.GatewayPayment{
		ID:              pi.ID,
		Object:          objectPaymentIntent,
		Status:          string(pi.Status),
		Paid:            pi.Status == stripe.PaymentIntentStatusSucceeded,
		Expired:         pi.Status == stripe.PaymentIntentStatusCanceled,
		AmountCents:     pi.Amount,
		Currency:        string(pi.Currency),
		PaymentIntentID: pi.ID,
		Metadata:        pi.Metadata,
	}
}

func chargeStatus(s stripe.PaymentIntentStatus) adapter.ChargeStatus {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return adapter.ChargeSucceeded
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return adapter.ChargePending
	default:
		return adapter.ChargeFailed
	}
}

func clampCents(c int64) int64 {
	if c < 0 {
		return 0
	}
	return c
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// stripeLogger routes stripe-go's leveled logging through zerolog.
type stripeLogger struct {
	log *zerolog.Logger
}

func (s stripeLogger) Debugf(format string, v ...interface{}) { s.log.Debug().Msgf(format, v...) }
func (s stripeLogger) Infof(format string, v ...interface{})  { s.log.Debug().Msgf(format, v...) }
func (s stripeLogger) Warnf(format string, v ...interface{})  { s.log.Warn().Msgf(format, v...) }
func (s stripeLogger) Errorf(format string, v ...interface{}) { s.log.Error().Msgf(format, v...) }
