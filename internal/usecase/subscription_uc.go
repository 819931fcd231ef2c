// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/adapter"
	"collab-billing/internal/domain/ports/repository"
	"collab-billing/internal/infra/logging"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionUseCase is the subscription lifecycle engine. Every state-changing
// method runs in a serializable transaction holding the per-user lock.
type SubscriptionUseCase interface {
	GetCurrent(ctx context.Context, userID string) (*CurrentSubscription, error)
	EnsureFreeSubscription(ctx context.Context, userID string) (*model.Subscription, error)

	Upgrade(ctx context.Context, req UpgradeRequest) (*UpgradeQuote, error)
	ProcessUpgrade(ctx context.Context, in model.UpgradeIntent, conf PaymentConfirmation) (*UpgradeResult, error)
	// ProcessRenewal books a renewal charge confirmed after Renew returned.
	ProcessRenewal(ctx context.Context, in model.RenewalIntent, conf PaymentConfirmation) (*RenewalResult, error)

	SwitchToFreePlan(ctx context.Context, userID string) (*model.Subscription, error)
	// SwitchToFreePlanTx is SwitchToFreePlan inside a caller-owned transaction that already holds the user lock.
	SwitchToFreePlanTx(ctx context.Context, tx repository.Tx, userID string, now time.Time) (*model.Subscription, error)

	ToggleAutoRenew(ctx context.Context, userID string, enabled bool) (*AutoRenewStatus, error)
	GetAutoRenewStatus(ctx context.Context, userID string) (*AutoRenewStatus, error)
	Renew(ctx context.Context, userID string, opts RenewOptions) (*RenewalResult, error)

	TrackUsage(ctx context.Context, userID string, counter model.UsageCounter, delta int) (*model.Subscription, error)
}

// SubscriptionDeps groups the ports the engine talks to.
type SubscriptionDeps struct {
	Subs     repository.SubscriptionRepository
	Plans    repository.PlanRepository
	Payments repository.PaymentRepository
	Users    repository.UserRepository
	Methods  repository.PaymentMethodRepository
	Changes  repository.SubscriptionChangeRepository
	Locker   repository.UserLocker
	TM       repository.TransactionManager
	Gateway  adapter.PaymentGateway

	// Outbox and Translator are optional; when set a failed renewal queues a notice.
	Outbox     repository.OutboxRepository
	Translator Translator
}

type SubscriptionConfig struct {
	Currency      string
	SuccessURL    string
	CancelURL     string
	RenewalWindow time.Duration
	RenewalRetry  model.RetryPolicy
	Now           func() time.Time
}

func (c SubscriptionConfig) withDefaults() SubscriptionConfig {
	if c.Currency == "" {
		c.Currency = "usd"
	}
	if c.RenewalWindow <= 0 {
		c.RenewalWindow = 7 * 24 * time.Hour
	}
	if c.RenewalRetry.MaxAttempts <= 0 {
		c.RenewalRetry = model.RenewalRetryPolicy()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type UpgradeRequest struct {
	UserID          string
	NewPlanID       string
	PaymentMethodID string
}

type UpgradeQuote struct {
	ChangeID  string          `json:"changeId"`
	SessionID string          `json:"sessionId"`
	URL       string          `json:"url"`
	Amount    string          `json:"amount"`
	Proration model.Proration `json:"prorationDetails"`
}

// PaymentConfirmation is what the processor reported for a paid upgrade.
type PaymentConfirmation struct {
	SessionID       string
	PaymentIntentID string
	AmountCents     int64
	Currency        string
}

type UpgradeResult struct {
	Subscription *model.Subscription
	Payment      *model.Payment

	// Replayed is true when the change had already been applied.
	Replayed bool
}

type CurrentSubscription struct {
	Subscription   *model.Subscription `json:"subscription"`
	Plan           *model.Plan         `json:"plan"`
	IsExpiringSoon bool                `json:"is_expiring_soon"`
}

type AutoRenewStatus struct {
	AutoRenewEnabled    bool                 `json:"auto_renew_enabled"`
	HasPaymentMethod    bool                 `json:"has_payment_method"`
	CurrentSubscription *CurrentSubscription `json:"current_subscription"`
}

type RenewOptions struct {
	// BypassWindow skips the renewal window check (test mode only).
	BypassWindow bool
}

type RenewalResult struct {
	Success      bool                 `json:"success"`
	NewEndDate   *time.Time           `json:"new_end_date,omitempty"`
	FailureCount int                  `json:"renewal_failure_count"`
	ChargeStatus adapter.ChargeStatus `json:"charge_status,omitempty"`
	Subscription *model.Subscription  `json:"-"`
	Payment      *model.Payment       `json:"-"`
	Replayed     bool                 `json:"-"`
}

type subscriptionUC struct {
	subs     repository.SubscriptionRepository
	plans    repository.PlanRepository
	payments repository.PaymentRepository
	users    repository.UserRepository
	methods  repository.PaymentMethodRepository
	changes  repository.SubscriptionChangeRepository
	locker   repository.UserLocker
	tm       repository.TransactionManager
	gateway  adapter.PaymentGateway
	outbox   repository.OutboxRepository
	mail     *mailer

	cfg SubscriptionConfig
	log *zerolog.Logger
}

func NewSubscriptionUseCase(deps SubscriptionDeps, cfg SubscriptionConfig, logger *zerolog.Logger) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	var m *mailer
	if deps.Outbox != nil && deps.Translator != nil {
		m = &mailer{tr: deps.Translator}
	}
	return &subscriptionUC{
		subs:     deps.Subs,
		plans:    deps.Plans,
		payments: deps.Payments,
		users:    deps.Users,
		methods:  deps.Methods,
		changes:  deps.Changes,
		locker:   deps.Locker,
		tm:       deps.TM,
		gateway:  deps.Gateway,
		outbox:   deps.Outbox,
		mail:     m,
		cfg:      cfg.withDefaults(),
		log:      &l,
	}
}

var serializable = pgx.TxOptions{IsoLevel: pgx.Serializable}

// inUserTx runs fn in a serializable transaction that holds the user's lock.
func (u *subscriptionUC) inUserTx(ctx context.Context, userID string, fn func(ctx context.Context, tx repository.Tx) error) error {
	return u.tm.WithTx(ctx, serializable, func(ctx context.Context, tx repository.Tx) error {
		if err := u.locker.LockUser(ctx, tx, userID); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		return fn(ctx, tx)
	})
}

// freePlan resolves the catalog FREE plan; the row must exist to be referenced by subscriptions.
func (u *subscriptionUC) freePlan(ctx context.Context, tx repository.Tx) (*model.Plan, error) {
	p, err := u.plans.FindByType(ctx, tx, model.PlanTypeFree)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: free plan missing from catalog", domain.ErrPlanNotFound)
	}
	return p, err
}

func (u *subscriptionUC) findPlan(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	p, err := u.plans.FindByID(ctx, tx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrPlanNotFound
	}
	return p, err
}

// currentWithPlan returns the ACTIVE row (nil if none) and its plan, defaulting to FREE.
func (u *subscriptionUC) currentWithPlan(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, *model.Plan, error) {
	sub, err := u.subs.FindActiveByUser(ctx, tx, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		p, err := u.plans.FindByType(ctx, tx, model.PlanTypeFree)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, model.DefaultFreePlan(), nil
		}
		if err != nil {
			return nil, nil, err
		}
		return nil, p, nil
	case err != nil:
		return nil, nil, err
	}
	plan, err := u.findPlan(ctx, tx, sub.PlanID)
	if err != nil {
		return nil, nil, err
	}
	return sub, plan, nil
}

// carriedUsage returns the counters of the most recent row, or zero for a first subscription.
func (u *subscriptionUC) carriedUsage(ctx context.Context, tx repository.Tx, userID string) (model.UsageCounters, error) {
	latest, err := u.subs.FindLatestByUser(ctx, tx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return model.UsageCounters{}, nil
	}
	if err != nil {
		return model.UsageCounters{}, err
	}
	return latest.Usage, nil
}

func (u *subscriptionUC) GetCurrent(ctx context.Context, userID string) (*CurrentSubscription, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	sub, plan, err := u.currentWithPlan(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	return &CurrentSubscription{
		Subscription:   sub,
		Plan:           plan,
		IsExpiringSoon: sub.IsExpiringSoon(u.cfg.Now()),
	}, nil
}

func (u *subscriptionUC) EnsureFreeSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	var out *model.Subscription
	err := u.inUserTx(ctx, userID, func(ctx context.Context, tx repository.Tx) error {
		active, err := u.subs.FindActiveByUser(ctx, tx, userID)
		if err == nil {
			out = active
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		free, err := u.freePlan(ctx, tx)
		if err != nil {
			return err
		}
		usage, err := u.carriedUsage(ctx, tx, userID)
		if err != nil {
			return err
		}
		sub, err := model.NewSubscription(userID, free, usage, false, nil, u.cfg.Now())
		if err != nil {
			return err
		}
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		out = sub
		return nil
	})
	return out, err
}

// Upgrade prices the change and opens a checkout session. Nothing but the PENDING
// change record is written until the processor confirms the payment.
func (u *subscriptionUC) Upgrade(ctx context.Context, req UpgradeRequest) (*UpgradeQuote, error) {
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "SubscriptionUC.Upgrade")()

	if req.UserID == "" || req.NewPlanID == "" {
		return nil, domain.ErrInvalidArgument
	}
	user, err := u.users.FindByID(ctx, repository.NoTX, req.UserID)
	if err != nil {
		return nil, err
	}
	current, currentPlan, err := u.currentWithPlan(ctx, repository.NoTX, req.UserID)
	if err != nil {
		return nil, err
	}
	newPlan, err := u.findPlan(ctx, repository.NoTX, req.NewPlanID)
	if err != nil {
		return nil, err
	}
	if req.PaymentMethodID != "" {
		if err := u.ownsPaymentMethod(ctx, req.UserID, req.PaymentMethodID); err != nil {
			return nil, err
		}
	}

	now := u.cfg.Now()
	proration, err := model.Prorate(current, currentPlan, newPlan, now)
	if err != nil {
		return nil, err
	}
	charge := proration.Charge()

	intent := model.UpgradeIntent{
		ChangeID:        uuid.NewString(),
		UserID:          req.UserID,
		CurrentPlanID:   currentPlan.ID,
		NewPlanID:       newPlan.ID,
		ProratedAmount:  charge,
		PaymentMethodID: req.PaymentMethodID,
	}
	params := adapter.CheckoutParams{
		LineItems: []adapter.LineItem{{
			Name:        "Upgrade to " + newPlan.Name,
			Description: fmt.Sprintf("Prorated for %d of %d days", proration.RemainingDays, proration.TotalDays),
			AmountCents: model.ToCents(charge),
			Currency:    u.currency(newPlan),
			Quantity:    1,
		}},
		Metadata:       intent.Metadata(),
		SuccessURL:     u.cfg.SuccessURL,
		CancelURL:      u.cfg.CancelURL,
		ClientRef:      req.UserID,
		IdempotencyKey: "upgrade:" + intent.ChangeID,
	}
	if user.StripeCustomerID != nil {
		params.CustomerID = *user.StripeCustomerID
	}

	session, err := u.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("new_plan_id", newPlan.ID).Msg("checkout session failed")
		return nil, err
	}

	change := model.NewUpgradeChange(intent, session.ID, now)
	if err := u.changes.Save(ctx, repository.NoTX, change); err != nil {
		// ProcessUpgrade rebuilds the change from session metadata, so the quote stays valid.
		log.Warn().Err(err).Str("change_id", change.ID).Msg("failed to record pending upgrade")
	}

	log.Info().
		Str("change_id", intent.ChangeID).
		Str("session_id", session.ID).
		Str("from_plan", string(currentPlan.Type)).
		Str("to_plan", string(newPlan.Type)).
		Str("amount", charge.StringFixed(2)).
		Msg("upgrade checkout created")

	return &UpgradeQuote{
		ChangeID:  intent.ChangeID,
		SessionID: session.ID,
		URL:       session.URL,
		Amount:    charge.StringFixed(2),
		Proration: proration,
	}, nil
}

func (u *subscriptionUC) ownsPaymentMethod(ctx context.Context, userID, methodID string) error {
	methods, err := u.methods.ListByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return err
	}
	for _, m := range methods {
		if m.ID == methodID {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown payment method", domain.ErrInvalidArgument)
}

func (u *subscriptionUC) currency(p *model.Plan) string {
	if p != nil && p.Currency != "" {
		return p.Currency
	}
	return u.cfg.Currency
}

// ProcessUpgrade applies a paid upgrade exactly once per change id.
func (u *subscriptionUC) ProcessUpgrade(ctx context.Context, in model.UpgradeIntent, conf PaymentConfirmation) (*UpgradeResult, error) {
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "SubscriptionUC.ProcessUpgrade")()

	if in.ChangeID == "" || in.UserID == "" || in.NewPlanID == "" {
		return nil, domain.ErrInvalidIntent
	}

	var res UpgradeResult
	err := u.inUserTx(ctx, in.UserID, func(ctx context.Context, tx repository.Tx) error {
		now := u.cfg.Now()

		change, err := u.changes.FindByIDForUpdate(ctx, tx, in.ChangeID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			change = model.NewUpgradeChange(in, conf.SessionID, now)
		case err != nil:
			return err
		}
		if change.UserID != in.UserID || change.Kind != model.ChangeKindUpgrade {
			return domain.ErrInvalidIntent
		}

		if change.IsConfirmed() {
			res.Replayed = true
			if change.SubscriptionID != nil {
				sub, err := u.subs.FindByID(ctx, tx, *change.SubscriptionID)
				if err != nil {
					return err
				}
				res.Subscription = sub
			}
			return nil
		}
		if change.Status != model.ChangeStatusPending {
			return domain.ErrInvalidTransition
		}

		plan, err := u.findPlan(ctx, tx, change.NewPlanID)
		if err != nil {
			return err
		}
		user, err := u.users.FindByID(ctx, tx, in.UserID)
		if err != nil {
			return err
		}
		usage, err := u.carriedUsage(ctx, tx, in.UserID)
		if err != nil {
			return err
		}

		if _, err := u.subs.DeactivateAllActive(ctx, tx, in.UserID, model.SubscriptionStatusDeactivated, now); err != nil {
			return err
		}

		var methodID *string
		if in.PaymentMethodID != "" {
			id := in.PaymentMethodID
			methodID = &id
		} else if user.AutoRenewEnabled {
			methods, err := u.methods.ListByUser(ctx, tx, in.UserID)
			if err != nil {
				return err
			}
			if def := model.DefaultPaymentMethod(methods); def != nil {
				methodID = &def.ID
			}
		}

		sub, err := model.NewSubscription(in.UserID, plan, usage, user.AutoRenewEnabled, methodID, now)
		if err != nil {
			return err
		}
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return err
		}

		amount := change.Amount
		if conf.AmountCents > 0 {
			amount = model.FromCents(conf.AmountCents)
		}
		currency := conf.Currency
		if currency == "" {
			currency = u.currency(plan)
		}
		payment, err := model.NewCompletedPayment(in.UserID, plan.ID, amount, currency, conf.PaymentIntentID, map[string]any{
			"kind":       string(model.IntentKindUpgrade),
			"change_id":  change.ID,
			"session_id": conf.SessionID,
		}, now)
		if err != nil {
			return err
		}
		if err := u.payments.Save(ctx, tx, payment); err != nil {
			return err
		}

		if err := change.Confirm(sub.ID, payment.ID, conf.PaymentIntentID, now); err != nil {
			return err
		}
		if err := u.changes.Save(ctx, tx, change); err != nil {
			return err
		}

		res.Subscription = sub
		res.Payment = payment
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("change_id", in.ChangeID).Msg("process upgrade failed")
		return nil, err
	}

	if res.Replayed {
		log.Debug().Str("change_id", in.ChangeID).Msg("upgrade already applied")
	} else {
		log.Info().Str("change_id", in.ChangeID).Str("subscription_id", res.Subscription.ID).Msg("upgrade applied")
	}
	return &res, nil
}

func (u *subscriptionUC) SwitchToFreePlan(ctx context.Context, userID string) (*model.Subscription, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	var out *model.Subscription
	err := u.inUserTx(ctx, userID, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.SwitchToFreePlanTx(ctx, tx, userID, u.cfg.Now())
		out = sub
		return err
	})
	return out, err
}

// SwitchToFreePlanTx cancels the ACTIVE row and inserts a FREE row carrying the usage counters.
func (u *subscriptionUC) SwitchToFreePlanTx(ctx context.Context, tx repository.Tx, userID string, now time.Time) (*model.Subscription, error) {
	free, err := u.freePlan(ctx, tx)
	if err != nil {
		return nil, err
	}
	usage, err := u.carriedUsage(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := u.subs.DeactivateAllActive(ctx, tx, userID, model.SubscriptionStatusCancelled, now); err != nil {
		return nil, err
	}
	sub, err := model.NewSubscription(userID, free, usage, false, nil, now)
	if err != nil {
		return nil, err
	}
	if err := u.subs.Save(ctx, tx, sub); err != nil {
		return nil, err
	}
	u.log.Info().Str("user_id", userID).Str("subscription_id", sub.ID).Msg("switched to free plan")
	return sub, nil
}

func (u *subscriptionUC) ToggleAutoRenew(ctx context.Context, userID string, enabled bool) (*AutoRenewStatus, error) {
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "SubscriptionUC.ToggleAutoRenew")()

	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}

	var status *AutoRenewStatus
	err := u.inUserTx(ctx, userID, func(ctx context.Context, tx repository.Tx) error {
		if _, err := u.users.FindByID(ctx, tx, userID); err != nil {
			return err
		}
		current, plan, err := u.currentWithPlan(ctx, tx, userID)
		if err != nil {
			return err
		}
		if plan.IsFree() {
			return domain.ErrFreePlanAutoRenew
		}

		methods, err := u.methods.ListByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		var def *model.PaymentMethod
		if enabled {
			if len(methods) == 0 {
				return domain.ErrNoPaymentMethod
			}
			def = model.DefaultPaymentMethod(methods)
			if def == nil {
				def = methods[0]
				if err := u.methods.SetDefault(ctx, tx, userID, def.ID); err != nil {
					return err
				}
				def.IsDefault = true
				log.Info().Str("payment_method_id", def.ID).Msg("promoted payment method to default")
			}
		}

		if err := u.users.SetAutoRenew(ctx, tx, userID, enabled); err != nil {
			return err
		}

		if current != nil {
			current.AutoRenew = enabled
			if def != nil {
				current.PaymentMethodID = &def.ID
			}
			current.UpdatedAt = u.cfg.Now()
			if err := u.subs.Save(ctx, tx, current); err != nil {
				return err
			}
		}

		status = &AutoRenewStatus{
			AutoRenewEnabled: enabled,
			HasPaymentMethod: len(methods) > 0,
			CurrentSubscription: &CurrentSubscription{
				Subscription:   current,
				Plan:           plan,
				IsExpiringSoon: current.IsExpiringSoon(u.cfg.Now()),
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Bool("enabled", enabled).Msg("auto-renew updated")
	return status, nil
}

func (u *subscriptionUC) GetAutoRenewStatus(ctx context.Context, userID string) (*AutoRenewStatus, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	methods, err := u.methods.ListByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	current, err := u.GetCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &AutoRenewStatus{
		AutoRenewEnabled:    user.AutoRenewEnabled,
		HasPaymentMethod:    len(methods) > 0,
		CurrentSubscription: current,
	}, nil
}

// renewalPlan is the validated input of one renewal attempt.
type renewalPlan struct {
	user   *model.User
	sub    *model.Subscription
	plan   *model.Plan
	method *model.PaymentMethod
}

func (u *subscriptionUC) prepareRenewal(ctx context.Context, userID string, opts RenewOptions, now time.Time) (*renewalPlan, error) {
	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	if !user.AutoRenewEnabled {
		return nil, domain.ErrAutoRenewDisabled
	}
	sub, err := u.subs.FindActiveByUser(ctx, repository.NoTX, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}
	plan, err := u.findPlan(ctx, repository.NoTX, sub.PlanID)
	if err != nil {
		return nil, err
	}
	if plan.IsFree() || !sub.AutoRenew || sub.EndDate == nil {
		return nil, domain.ErrAutoRenewDisabled
	}

	methods, err := u.methods.ListByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	method := pickPaymentMethod(methods, sub.PaymentMethodID)
	if method == nil {
		return nil, domain.ErrNoPaymentMethod
	}

	if u.cfg.RenewalRetry.Exhausted(sub.RenewalFailureCount, sub.LastRenewalAttempt, now) {
		return nil, domain.ErrMaxRetriesExceeded
	}
	if !opts.BypassWindow && !sub.RenewalWindowOpen(now, u.cfg.RenewalWindow) {
		return nil, domain.ErrRenewalWindowNotOpen
	}
	return &renewalPlan{user: user, sub: sub, plan: plan, method: method}, nil
}

func pickPaymentMethod(methods []*model.PaymentMethod, preferred *string) *model.PaymentMethod {
	if preferred != nil {
		for _, m := range methods {
			if m.ID == *preferred {
				return m
			}
		}
	}
	if def := model.DefaultPaymentMethod(methods); def != nil {
		return def
	}
	if len(methods) > 0 {
		return methods[0]
	}
	return nil
}

// Renew charges the stored payment method for the next period. The charge runs outside
// the transaction; its idempotency key is bound to the period and the decline count, so
// a repeated attempt cannot bill twice and a fixed card gets a fresh charge.
func (u *subscriptionUC) Renew(ctx context.Context, userID string, opts RenewOptions) (*RenewalResult, error) {
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "SubscriptionUC.Renew")()

	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := u.cfg.Now()

	rp, err := u.prepareRenewal(ctx, userID, opts, now)
	if err != nil {
		return nil, err
	}

	intent := model.NewRenewalIntent(userID, rp.sub.ID, rp.plan.ID, *rp.sub.EndDate, rp.plan.Price, rp.sub.RenewalDeclines)
	params := adapter.ChargeParams{
		PaymentMethodID: rp.method.ProcessorID,
		AmountCents:     model.ToCents(rp.plan.Price),
		Currency:        u.currency(rp.plan),
		Description:     "Renewal of " + rp.plan.Name,
		Metadata:        intent.Metadata(),
		IdempotencyKey:  intent.IdempotencyKey(),
	}
	if rp.user.StripeCustomerID != nil {
		params.CustomerID = *rp.user.StripeCustomerID
	}

	charge, chargeErr := u.gateway.Charge(ctx, params)
	succeeded := chargeErr == nil && charge.Status == adapter.ChargeSucceeded
	// Transport errors and pending charges keep the key: the charge may still land.
	declined := errors.Is(chargeErr, domain.ErrPaymentDeclined) ||
		(chargeErr == nil && charge.Status == adapter.ChargeFailed)

	var res RenewalResult
	err = u.inUserTx(ctx, userID, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.subs.FindByID(ctx, tx, rp.sub.ID)
		if err != nil {
			return err
		}
		if !sub.IsActive() {
			return domain.ErrNoActiveSubscription
		}
		if sub.EndDate == nil {
			return domain.ErrAutoRenewDisabled
		}
		if sub.EndDate.After(intent.PeriodEnd) {
			// A concurrent attempt or a webhook already renewed this period.
			res = RenewalResult{Success: true, NewEndDate: sub.EndDate, Subscription: sub, ChargeStatus: charge.Status}
			return nil
		}
		now := u.cfg.Now()

		if succeeded {
			payment, err := u.bookRenewal(ctx, tx, sub, rp.plan, intent, charge.ID, params.Currency, now)
			if err != nil {
				return err
			}
			res = RenewalResult{Success: true, NewEndDate: sub.EndDate, ChargeStatus: charge.Status, Subscription: sub, Payment: payment}
			return nil
		}

		if u.cfg.RenewalRetry.Exhausted(sub.RenewalFailureCount, sub.LastRenewalAttempt, now) {
			return domain.ErrMaxRetriesExceeded
		}
		if sub.RenewalFailureCount != rp.sub.RenewalFailureCount || sub.RenewalDeclines != rp.sub.RenewalDeclines {
			// A concurrent attempt with the same key already counted this outcome.
			res = RenewalResult{FailureCount: sub.RenewalFailureCount, ChargeStatus: charge.Status, Subscription: sub}
			return nil
		}

		sub.RecordRenewalFailure(now, declined)
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		if u.mail != nil {
			e := u.mail.renewalFailed(rp.user, rp.plan, sub.RenewalFailureCount, u.cfg.RenewalRetry.MaxAttempts)
			msg, err := model.NewEmailMessage(e, now)
			if err != nil {
				return err
			}
			if err := u.outbox.Enqueue(ctx, tx, msg); err != nil {
				return err
			}
		}
		res = RenewalResult{FailureCount: sub.RenewalFailureCount, ChargeStatus: charge.Status, Subscription: sub}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("renewal bookkeeping failed")
		return nil, err
	}

	if chargeErr != nil {
		log.Warn().Err(chargeErr).Int("failures", res.FailureCount).Msg("renewal charge errored")
		return &res, chargeErr
	}
	if !res.Success {
		log.Warn().Str("charge_status", string(charge.Status)).Int("failures", res.FailureCount).Msg("renewal charge not captured")
		return &res, fmt.Errorf("%w: charge %s", domain.ErrPaymentDeclined, charge.Status)
	}
	log.Info().Time("new_end_date", *res.NewEndDate).Msg("subscription renewed")
	return &res, nil
}

// ProcessRenewal books a renewal charge that was captured after Renew returned,
// typically one that was still processing. It applies once per change id and only
// while the subscription still ends at the charged period.
func (u *subscriptionUC) ProcessRenewal(ctx context.Context, in model.RenewalIntent, conf PaymentConfirmation) (*RenewalResult, error) {
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "SubscriptionUC.ProcessRenewal")()

	if in.ChangeID == "" || in.UserID == "" || in.SubscriptionID == "" {
		return nil, domain.ErrInvalidIntent
	}

	var res RenewalResult
	err := u.inUserTx(ctx, in.UserID, func(ctx context.Context, tx repository.Tx) error {
		change, err := u.changes.FindByIDForUpdate(ctx, tx, in.ChangeID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			change = nil
		case err != nil:
			return err
		case change.UserID != in.UserID || change.Kind != model.ChangeKindRenewal:
			return domain.ErrInvalidIntent
		}

		sub, err := u.subs.FindByID(ctx, tx, in.SubscriptionID)
		if err != nil {
			return err
		}
		if sub.UserID != in.UserID {
			return domain.ErrInvalidIntent
		}
		if change != nil && change.IsConfirmed() {
			res = RenewalResult{Success: true, NewEndDate: sub.EndDate, Subscription: sub, ChargeStatus: adapter.ChargeSucceeded, Replayed: true}
			return nil
		}
		// Metadata carries period_end at second precision.
		if !sub.IsActive() || sub.EndDate == nil || sub.EndDate.Unix() != in.PeriodEnd.Unix() {
			return domain.ErrRenewalPeriodMismatch
		}

		plan, err := u.findPlan(ctx, tx, sub.PlanID)
		if err != nil {
			return err
		}
		amount := in.Amount
		if conf.AmountCents > 0 {
			amount = model.FromCents(conf.AmountCents)
		}
		currency := conf.Currency
		if currency == "" {
			currency = u.currency(plan)
		}
		in.Amount = amount
		payment, err := u.bookRenewal(ctx, tx, sub, plan, in, conf.PaymentIntentID, currency, u.cfg.Now())
		if err != nil {
			return err
		}
		res = RenewalResult{Success: true, NewEndDate: sub.EndDate, Subscription: sub, Payment: payment, ChargeStatus: adapter.ChargeSucceeded}
		return nil
	})
	if errors.Is(err, domain.ErrRenewalPeriodMismatch) {
		// Paid, but the period is already covered or the row is gone. Needs a manual refund.
		log.Error().Err(err).Str("change_id", in.ChangeID).Str("payment_intent", conf.PaymentIntentID).Msg("renewal charge captured for a stale period")
		return nil, err
	}
	if err != nil {
		log.Error().Err(err).Str("change_id", in.ChangeID).Msg("process renewal failed")
		return nil, err
	}
	if !res.Replayed {
		log.Info().Str("change_id", in.ChangeID).Time("new_end_date", *res.NewEndDate).Msg("late renewal charge booked")
	}
	return &res, nil
}

// bookRenewal extends sub by one interval and records the COMPLETED payment and the
// confirmed RENEWAL change for a captured charge.
func (u *subscriptionUC) bookRenewal(ctx context.Context, tx repository.Tx, sub *model.Subscription, plan *model.Plan, in model.RenewalIntent, chargeID, currency string, now time.Time) (*model.Payment, error) {
	sub.Extend(plan, now)
	if err := u.subs.Save(ctx, tx, sub); err != nil {
		return nil, err
	}
	payment, err := model.NewCompletedPayment(in.UserID, plan.ID, in.Amount, currency, chargeID, map[string]any{
		"kind":       string(model.IntentKindRenewal),
		"change_id":  in.ChangeID,
		"period_end": in.PeriodEnd.UTC().Format(time.RFC3339),
	}, now)
	if err != nil {
		return nil, err
	}
	if err := u.payments.Save(ctx, tx, payment); err != nil {
		return nil, err
	}
	change := model.NewRenewalChange(in, now)
	if err := change.Confirm(sub.ID, payment.ID, chargeID, now); err != nil {
		return nil, err
	}
	if err := u.changes.Save(ctx, tx, change); err != nil {
		return nil, err
	}
	return payment, nil
}

func (u *subscriptionUC) TrackUsage(ctx context.Context, userID string, counter model.UsageCounter, delta int) (*model.Subscription, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	var out *model.Subscription
	err := u.inUserTx(ctx, userID, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.subs.FindActiveByUser(ctx, tx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNoActiveSubscription
		}
		if err != nil {
			return err
		}
		usage, err := sub.Usage.Add(counter, delta)
		if err != nil {
			return err
		}
		sub.Usage = usage
		sub.UpdatedAt = u.cfg.Now()
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		out = sub
		return nil
	})
	return out, err
}
