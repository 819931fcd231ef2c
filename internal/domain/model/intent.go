package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"collab-billing/internal/domain"
)

type IntentKind string

const (
	IntentKindUpgrade IntentKind = "upgrade"
	IntentKindRenewal IntentKind = "renewal"
)

// Intent is the typed payload carried through the payment processor as metadata.
type Intent interface {
	Kind() IntentKind
	// Owner is the id of the user the charge belongs to.
	Owner() string
	Metadata() map[string]string
}

var (
	_ Intent = UpgradeIntent{}
	_ Intent = RenewalIntent{}
)

type UpgradeIntent struct {
	ChangeID        string
	UserID          string
	CurrentPlanID   string // empty when upgrading from the implicit free plan
	NewPlanID       string
	ProratedAmount  decimal.Decimal
	PaymentMethodID string // optional
}

func (UpgradeIntent) Kind() IntentKind { return IntentKindUpgrade }

func (i UpgradeIntent) Owner() string { return i.UserID }

func (i UpgradeIntent) Metadata() map[string]string {
	md := map[string]string{
		"kind":            string(IntentKindUpgrade),
		"change_id":       i.ChangeID,
		"user_id":         i.UserID,
		"current_plan_id": i.CurrentPlanID,
		"new_plan_id":     i.NewPlanID,
		"prorated_amount": i.ProratedAmount.StringFixed(2),
	}
	if i.PaymentMethodID != "" {
		md["payment_method_id"] = i.PaymentMethodID
	}
	return md
}

type RenewalIntent struct {
	ChangeID       string
	UserID         string
	SubscriptionID string
	PlanID         string
	PeriodEnd      time.Time
	Amount         decimal.Decimal
	// Attempt is the number of definitive declines already seen for PeriodEnd.
	Attempt int
}

// NewRenewalIntent derives the change id from the idempotency key, so a
// replayed charge carries byte-identical metadata.
func NewRenewalIntent(userID, subscriptionID, planID string, periodEnd time.Time, amount decimal.Decimal, attempt int) RenewalIntent {
	in := RenewalIntent{
		UserID:         userID,
		SubscriptionID: subscriptionID,
		PlanID:         planID,
		PeriodEnd:      periodEnd,
		Amount:         amount,
		Attempt:        attempt,
	}
	in.ChangeID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(in.IdempotencyKey())).String()
	return in
}

func (RenewalIntent) Kind() IntentKind { return IntentKindRenewal }

func (i RenewalIntent) Owner() string { return i.UserID }

func (i RenewalIntent) Metadata() map[string]string {
	return map[string]string{
		"kind":            string(IntentKindRenewal),
		"change_id":       i.ChangeID,
		"user_id":         i.UserID,
		"subscription_id": i.SubscriptionID,
		"plan_id":         i.PlanID,
		"period_end":      i.PeriodEnd.UTC().Format(time.RFC3339),
		"amount":          i.Amount.StringFixed(2),
		"attempt":         strconv.Itoa(i.Attempt),
	}
}

// IdempotencyKey identifies one charge per subscription period and decline
// count. Retries after a timeout or a pending charge reuse it; a decline
// moves the next attempt to a fresh key.
func (i RenewalIntent) IdempotencyKey() string {
	return fmt.Sprintf("renewal:%s:%d:%d", i.SubscriptionID, i.PeriodEnd.Unix(), i.Attempt)
}

// ParseIntent validates processor metadata into a typed intent.
func ParseIntent(md map[string]string) (Intent, error) {
	if md == nil {
		return nil, domain.ErrInvalidIntent
	}
	switch IntentKind(md["kind"]) {
	case IntentKindUpgrade:
		amount, err := decimal.NewFromString(md["prorated_amount"])
		if err != nil || amount.IsNegative() {
			return nil, fmt.Errorf("%w: prorated_amount", domain.ErrInvalidIntent)
		}
		in := UpgradeIntent{
			ChangeID:        md["change_id"],
			UserID:          md["user_id"],
			CurrentPlanID:   md["current_plan_id"],
			NewPlanID:       md["new_plan_id"],
			ProratedAmount:  amount,
			PaymentMethodID: md["payment_method_id"],
		}
		if in.ChangeID == "" || in.UserID == "" || in.NewPlanID == "" {
			return nil, domain.ErrInvalidIntent
		}
		return in, nil
	case IntentKindRenewal:
		amount, err := decimal.NewFromString(md["amount"])
		if err != nil {
			return nil, fmt.Errorf("%w: amount", domain.ErrInvalidIntent)
		}
		end, err := time.Parse(time.RFC3339, md["period_end"])
		if err != nil {
			return nil, fmt.Errorf("%w: period_end", domain.ErrInvalidIntent)
		}
		attempt := 0
		if v := md["attempt"]; v != "" {
			attempt, err = strconv.Atoi(v)
			if err != nil || attempt < 0 {
				return nil, fmt.Errorf("%w: attempt", domain.ErrInvalidIntent)
			}
		}
		in := RenewalIntent{
			ChangeID:       md["change_id"],
			UserID:         md["user_id"],
			SubscriptionID: md["subscription_id"],
			PlanID:         md["plan_id"],
			PeriodEnd:      end,
			Amount:         amount,
			Attempt:        attempt,
		}
		if in.ChangeID == "" || in.UserID == "" || in.SubscriptionID == "" {
			return nil, domain.ErrInvalidIntent
		}
		return in, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidIntent, md["kind"])
	}
}

type ChangeKind string

const (
	ChangeKindUpgrade ChangeKind = "UPGRADE"
	ChangeKindRenewal ChangeKind = "RENEWAL"
)

type ChangeStatus string

const (
	ChangeStatusPending   ChangeStatus = "PENDING"
	ChangeStatusConfirmed ChangeStatus = "CONFIRMED"
	ChangeStatusExpired   ChangeStatus = "EXPIRED"
)

// SubscriptionChange records a pending lifecycle change until the processor confirms it.
// SessionID and PaymentRef are unique, which makes confirmation idempotent.
type SubscriptionChange struct {
	ID             string
	UserID         string
	Kind           ChangeKind
	Status         ChangeStatus
	CurrentPlanID  *string
	NewPlanID      string
	Amount         decimal.Decimal
	SessionID      *string
	PaymentRef     *string
	SubscriptionID *string
	PaymentID      *string
	CreatedAt      time.Time
	ConfirmedAt    *time.Time
}

// NewUpgradeChange builds the PENDING record for an upgrade intent.
func NewUpgradeChange(in UpgradeIntent, sessionID string, now time.Time) *SubscriptionChange {
	c := &SubscriptionChange{
		ID:        in.ChangeID,
		UserID:    in.UserID,
		Kind:      ChangeKindUpgrade,
		Status:    ChangeStatusPending,
		NewPlanID: in.NewPlanID,
		Amount:    in.ProratedAmount,
		CreatedAt: now,
	}
	if in.CurrentPlanID != "" {
		cur := in.CurrentPlanID
		c.CurrentPlanID = &cur
	}
	if sessionID != "" {
		c.SessionID = &sessionID
	}
	return c
}

func (c *SubscriptionChange) IsConfirmed() bool { return c.Status == ChangeStatusConfirmed }

// NewRenewalChange records a renewal charge for in; it is confirmed when the charge is booked.
func NewRenewalChange(in RenewalIntent, now time.Time) *SubscriptionChange {
	plan := in.PlanID
	return &SubscriptionChange{
		ID:            in.ChangeID,
		UserID:        in.UserID,
		Kind:          ChangeKindRenewal,
		Status:        ChangeStatusPending,
		CurrentPlanID: &plan,
		NewPlanID:     in.PlanID,
		Amount:        in.Amount,
		CreatedAt:     now,
	}
}

// Confirm links the change to the rows it produced.
func (c *SubscriptionChange) Confirm(subscriptionID, paymentID, paymentRef string, now time.Time) error {
	if c.Status != ChangeStatusPending {
		return domain.ErrInvalidTransition
	}
	c.Status = ChangeStatusConfirmed
	c.SubscriptionID = &subscriptionID
	c.PaymentID = &paymentID
	if paymentRef != "" {
		c.PaymentRef = &paymentRef
	}
	c.ConfirmedAt = &now
	return nil
}

func (c *SubscriptionChange) Expire() error {
	if c.Status != ChangeStatusPending {
		return domain.ErrInvalidTransition
	}
	c.Status = ChangeStatusExpired
	return nil
}
