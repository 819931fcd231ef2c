package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/adapter"
	"collab-billing/internal/domain/ports/repository"
	"collab-billing/internal/infra/logging"
)

// Compile-time check
var _ RefundUseCase = (*refundUC)(nil)

type RefundUseCase interface {
	CreateRequest(ctx context.Context, userID, paymentID, reason string, amount *decimal.Decimal) (*model.RefundRequest, error)
	// Refund pays back the linked payment and moves the user to the FREE plan.
	Refund(ctx context.Context, refundRequestID string) (*RefundOutcome, error)
}

type RefundOutcome struct {
	Success         bool                 `json:"success"`
	Refund          adapter.RefundResult `json:"refund"`
	NewSubscription *model.Subscription  `json:"newSubscription"`
}

type RefundDeps struct {
	Refunds  repository.RefundRequestRepository
	Payments repository.PaymentRepository
	Users    repository.UserRepository
	Subs     repository.SubscriptionRepository
	Outbox   repository.OutboxRepository
	Locker   repository.UserLocker
	TM       repository.TransactionManager
	Gateway  adapter.PaymentGateway

	// Lifecycle switches the user to FREE inside the refund transaction.
	Lifecycle SubscriptionUseCase
}

type refundUC struct {
	refunds   repository.RefundRequestRepository
	payments  repository.PaymentRepository
	users     repository.UserRepository
	subs      repository.SubscriptionRepository
	outbox    repository.OutboxRepository
	locker    repository.UserLocker
	tm        repository.TransactionManager
	gateway   adapter.PaymentGateway
	lifecycle SubscriptionUseCase
	mail      mailer
	now       func() time.Time
	log       *zerolog.Logger
}

func NewRefundUseCase(deps RefundDeps, tr Translator, now func() time.Time, logger *zerolog.Logger) *refundUC {
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "RefundUC").Logger()
	return &refundUC{
		refunds:   deps.Refunds,
		payments:  deps.Payments,
		users:     deps.Users,
		subs:      deps.Subs,
		outbox:    deps.Outbox,
		locker:    deps.Locker,
		tm:        deps.TM,
		gateway:   deps.Gateway,
		lifecycle: deps.Lifecycle,
		mail:      mailer{tr: tr},
		now:       now,
		log:       &l,
	}
}

func (r *refundUC) CreateRequest(ctx context.Context, userID, paymentID, reason string, amount *decimal.Decimal) (*model.RefundRequest, error) {
	if userID == "" || paymentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	p, err := r.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrNotFound
	}
	if p.Status != model.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: payment is %s", domain.ErrInvalidArgument, p.Status)
	}
	if _, err := r.refunds.FindPendingByPayment(ctx, repository.NoTX, paymentID); err == nil {
		return nil, domain.ErrAlreadyExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	var subID *string
	if sub, err := r.subs.FindActiveByUser(ctx, repository.NoTX, userID); err == nil {
		subID = &sub.ID
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	req, err := model.NewRefundRequest(userID, paymentID, subID, reason, amount)
	if err != nil {
		return nil, err
	}
	req.CreatedAt = r.now()
	if err := r.refunds.Save(ctx, repository.NoTX, req); err != nil {
		return nil, err
	}
	r.log.Info().Str("refund_request_id", req.ID).Str("payment_id", paymentID).Msg("refund requested")
	return req, nil
}

// Refund runs as a saga. The processor refund is keyed by the request id, so a rerun after a
// failure in the local transaction gets the same refund back instead of paying twice.
func (r *refundUC) Refund(ctx context.Context, refundRequestID string) (*RefundOutcome, error) {
	log := logging.With(ctx, r.log)
	defer logging.TraceDuration(log, "RefundUC.Refund")()

	if refundRequestID == "" {
		return nil, domain.ErrInvalidArgument
	}

	req, payment, user, err := r.load(ctx, refundRequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != model.RefundStatusPending {
		return nil, domain.ErrRefundAlreadyProcessed
	}
	ref := payment.ProcessorRef()
	if ref == "" {
		return nil, domain.ErrNoPaymentIntent
	}
	if payment.Status != model.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: payment is %s", domain.ErrRefundAlreadyProcessed, payment.Status)
	}

	amount := req.AmountFor(payment.Amount)
	refund, err := r.gateway.CreateRefund(ctx, adapter.RefundParams{
		PaymentIntentID: ref,
		AmountCents:     model.ToCents(amount),
		Reason:          adapter.RefundReasonCustomerRequest,
		Metadata: map[string]string{
			"refund_request_id": req.ID,
			"user_id":           req.UserID,
			"payment_id":        payment.ID,
		},
		IdempotencyKey: "refund:" + req.ID,
	})
	if err != nil {
		log.Error().Err(err).Str("refund_request_id", req.ID).Msg("gateway refund failed")
		return nil, err
	}
	refunded := amount
	if refund.AmountCents > 0 {
		refunded = model.FromCents(refund.AmountCents)
	}

	var newSub *model.Subscription
	err = r.tm.WithTx(ctx, serializable, func(ctx context.Context, tx repository.Tx) error {
		if err := r.locker.LockUser(ctx, tx, req.UserID); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		// Re-read under the lock; a concurrent run may have finished first.
		cur, err := r.refunds.FindByID(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if cur.Status != model.RefundStatusPending {
			return domain.ErrRefundAlreadyProcessed
		}
		pay, err := r.payments.FindByID(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		now := r.now()

		if err := pay.MarkRefunded(refund.ID, refunded, now); err != nil {
			return err
		}
		if err := r.payments.Save(ctx, tx, pay); err != nil {
			return err
		}
		newSub, err = r.lifecycle.SwitchToFreePlanTx(ctx, tx, req.UserID, now)
		if err != nil {
			return err
		}
		if err := cur.Approve(refund.ID, fmt.Sprintf("refunded %s %s", refunded.StringFixed(2), pay.Currency), now); err != nil {
			return err
		}
		if err := r.refunds.Save(ctx, tx, cur); err != nil {
			return err
		}
		msg, err := model.NewEmailMessage(r.mail.refund(user, refunded.StringFixed(2), pay.Currency), now)
		if err != nil {
			return err
		}
		return r.outbox.Enqueue(ctx, tx, msg)
	})
	if err != nil {
		log.Error().Err(err).Str("refund_request_id", req.ID).Str("gateway_refund_id", refund.ID).
			Msg("refund recorded at processor but local update failed; safe to retry")
		return nil, err
	}

	log.Info().
		Str("refund_request_id", req.ID).
		Str("gateway_refund_id", refund.ID).
		Str("amount", refunded.StringFixed(2)).
		Msg("refund approved")

	return &RefundOutcome{Success: true, Refund: refund, NewSubscription: newSub}, nil
}

func (r *refundUC) load(ctx context.Context, id string) (*model.RefundRequest, *model.Payment, *model.User, error) {
	req, err := r.refunds.FindByID(ctx, repository.NoTX, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, nil, domain.ErrRefundRequestNotFound
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if req.PaymentID == nil || *req.PaymentID == "" {
		return nil, nil, nil, domain.ErrPaymentNotLinked
	}
	payment, err := r.payments.FindByID(ctx, repository.NoTX, *req.PaymentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, nil, domain.ErrPaymentNotLinked
	}
	if err != nil {
		return nil, nil, nil, err
	}
	user, err := r.users.FindByID(ctx, repository.NoTX, req.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, nil, fmt.Errorf("%w: user missing", domain.ErrPaymentNotLinked)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	return req, payment, user, nil
}
