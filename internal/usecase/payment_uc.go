// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/adapter"
	"collab-billing/internal/domain/ports/repository"
	"collab-billing/internal/infra/logging"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// Processor event types that confirm or abandon a checkout.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutExpired        = "checkout.session.expired"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
)

type PaymentUseCase interface {
	// CheckStatus retrieves the processor object and applies a paid upgrade. userID, when set,
	// must own the intent.
	CheckStatus(ctx context.Context, userID string, ref PaymentRef) (*PaymentStatus, error)
	// HandleWebhook verifies a processor notification and runs the same confirmation path.
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*PaymentStatus, error)
	// ReconcilePending re-checks PENDING upgrades older than olderThan.
	ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) (ReconcileReport, error)
}

// PaymentRef names a checkout session or a payment intent; exactly one is set.
type PaymentRef struct {
	SessionID       string
	PaymentIntentID string
}

type PaymentStatus struct {
	Payment      adapter.GatewayPayment `json:"payment"`
	Subscription *model.Subscription    `json:"subscription,omitempty"`

	// Applied is true when this call created the subscription.
	Applied bool `json:"applied"`
}

type ReconcileReport struct {
	Checked int
	Applied int
	Expired int
	Failed  int
}

type paymentUC struct {
	changes repository.SubscriptionChangeRepository
	gateway adapter.PaymentGateway
	subs    SubscriptionUseCase
	now     func() time.Time
	log     *zerolog.Logger
}

func NewPaymentUseCase(changes repository.SubscriptionChangeRepository, gateway adapter.PaymentGateway, subs SubscriptionUseCase, logger *zerolog.Logger) *paymentUC {
	l := logger.With().Str("component", "PaymentUC").Logger()
	return &paymentUC{changes: changes, gateway: gateway, subs: subs, now: time.Now, log: &l}
}

func (u *paymentUC) CheckStatus(ctx context.Context, userID string, ref PaymentRef) (*PaymentStatus, error) {
	var (
		gp  adapter.GatewayPayment
		err error
	)
	switch {
	case ref.SessionID != "" && ref.PaymentIntentID == "":
		gp, err = u.gateway.RetrieveSession(ctx, ref.SessionID)
	case ref.PaymentIntentID != "" && ref.SessionID == "":
		gp, err = u.gateway.RetrievePaymentIntent(ctx, ref.PaymentIntentID)
	default:
		return nil, domain.ErrInvalidArgument
	}
	if err != nil {
		return nil, err
	}
	return u.confirm(ctx, userID, gp)
}

func (u *paymentUC) HandleWebhook(ctx context.Context, payload []byte, signature string) (*PaymentStatus, error) {
	ev, err := u.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return nil, err
	}
	log := u.log.With().Str("event_id", ev.ID).Str("event_type", ev.Type).Logger()

	if ev.Payment == nil {
		log.Debug().Msg("webhook without payment object ignored")
		return nil, nil
	}
	switch ev.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncSucceeded, EventPaymentIntentSucceeded:
		return u.confirm(ctx, "", *ev.Payment)
	case EventCheckoutExpired:
		if err := u.expire(ctx, ev.Payment.ID); err != nil {
			return nil, err
		}
		return &PaymentStatus{Payment: *ev.Payment}, nil
	default:
		log.Debug().Msg("webhook event ignored")
		return &PaymentStatus{Payment: *ev.Payment}, nil
	}
}

// confirm books the upgrade or renewal carried by a paid processor object.
func (u *paymentUC) confirm(ctx context.Context, userID string, gp adapter.GatewayPayment) (*PaymentStatus, error) {
	log := logging.With(ctx, u.log)
	out := &PaymentStatus{Payment: gp}
	if !gp.Paid || gp.Metadata["kind"] == "" {
		return out, nil
	}

	in, err := model.ParseIntent(gp.Metadata)
	if err != nil {
		log.Warn().Err(err).Str("payment_id", gp.ID).Msg("paid object carries invalid intent")
		return nil, err
	}
	if userID != "" && in.Owner() != userID {
		return nil, domain.ErrForbidden
	}

	conf := PaymentConfirmation{
		PaymentIntentID: gp.PaymentIntentID,
		AmountCents:     gp.AmountCents,
		Currency:        gp.Currency,
	}
	if gp.Object == "checkout.session" {
		conf.SessionID = gp.ID
	} else if conf.PaymentIntentID == "" {
		conf.PaymentIntentID = gp.ID
	}

	switch in := in.(type) {
	case model.UpgradeIntent:
		res, err := u.subs.ProcessUpgrade(ctx, in, conf)
		if err != nil {
			return nil, err
		}
		out.Subscription = res.Subscription
		out.Applied = !res.Replayed
	case model.RenewalIntent:
		// A renewal charge that was still processing when Renew returned.
		res, err := u.subs.ProcessRenewal(ctx, in, conf)
		if errors.Is(err, domain.ErrRenewalPeriodMismatch) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out.Subscription = res.Subscription
		out.Applied = !res.Replayed
	}
	return out, nil
}

func (u *paymentUC) expire(ctx context.Context, sessionID string) error {
	ch, err := u.changes.FindBySessionID(ctx, repository.NoTX, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if ch.Status != model.ChangeStatusPending {
		return nil
	}
	if err := ch.Expire(); err != nil {
		return err
	}
	return u.changes.Save(ctx, repository.NoTX, ch)
}

func (u *paymentUC) ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) (ReconcileReport, error) {
	var rep ReconcileReport
	cutoff := u.now().Add(-olderThan)
	pending, err := u.changes.ListPendingOlderThan(ctx, repository.NoTX, model.ChangeKindUpgrade, cutoff, limit)
	if err != nil {
		return rep, err
	}
	for _, ch := range pending {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Checked++
		if ch.SessionID == nil {
			// Never reached the processor; nothing can confirm it.
			if err := ch.Expire(); err == nil {
				if err := u.changes.Save(ctx, repository.NoTX, ch); err == nil {
					rep.Expired++
				}
			}
			continue
		}

		gp, err := u.gateway.RetrieveSession(ctx, *ch.SessionID)
		if err != nil {
			rep.Failed++
			u.log.Warn().Err(err).Str("change_id", ch.ID).Msg("reconcile: retrieve session failed")
			continue
		}
		switch {
		case gp.Paid:
			res, err := u.confirm(ctx, ch.UserID, gp)
			if err != nil {
				rep.Failed++
				u.log.Error().Err(err).Str("change_id", ch.ID).Msg("reconcile: apply upgrade failed")
				continue
			}
			if res.Applied {
				rep.Applied++
			}
		case gp.Expired:
			if err := u.expire(ctx, gp.ID); err != nil {
				rep.Failed++
				continue
			}
			rep.Expired++
		}
	}
	return rep, nil
}
