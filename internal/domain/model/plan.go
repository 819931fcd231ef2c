package model

import (
	"time"

	"github.com/shopspring/decimal"

	"collab-billing/internal/domain"
)

type PlanType string

const (
	PlanTypeFree       PlanType = "FREE"
	PlanTypePro        PlanType = "PRO"
	PlanTypeEnterprise PlanType = "ENTERPRISE"
)

// Rank orders plan tiers: FREE < PRO < ENTERPRISE. Unknown types rank below FREE.
func (t PlanType) Rank() int {
	switch t {
	case PlanTypeFree:
		return 0
	case PlanTypePro:
		return 1
	case PlanTypeEnterprise:
		return 2
	default:
		return -1
	}
}

func (t PlanType) Valid() bool { return t.Rank() >= 0 }

type BillingInterval string

const (
	BillingIntervalNone    BillingInterval = ""
	BillingIntervalMonthly BillingInterval = "MONTHLY"
	BillingIntervalYearly  BillingInterval = "YEARLY"
)

// AddTo advances t by one billing interval. BillingIntervalNone returns t unchanged.
func (i BillingInterval) AddTo(t time.Time) time.Time {
	switch i {
	case BillingIntervalMonthly:
		return t.AddDate(0, 1, 0)
	case BillingIntervalYearly:
		return t.AddDate(1, 0, 0)
	default:
		return t
	}
}

// Days is the nominal cycle length used when there is no paid cycle to prorate against.
func (i BillingInterval) Days() int {
	switch i {
	case BillingIntervalMonthly:
		return 30
	case BillingIntervalYearly:
		return 365
	default:
		return 0
	}
}

// PlanLimits are informational caps checked by the product, not by the billing service.
type PlanLimits struct {
	Projects  int `json:"projects"`
	Teams     int `json:"teams"`
	Members   int `json:"members"`
	AIActions int `json:"ai_actions"`
}

// Plan is immutable catalog data.
type Plan struct {
	ID              string
	Name            string
	Type            PlanType
	Price           decimal.Decimal // major units
	Currency        string
	BillingInterval BillingInterval
	Limits          PlanLimits
	CreatedAt       time.Time
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

// IsFree reports whether the plan never bills. A plan without an interval is treated as free.
func (p *Plan) IsFree() bool {
	return p.Type == PlanTypeFree || p.BillingInterval == BillingIntervalNone
}

// NewPlan validates and constructs a plan.
func NewPlan(id, name string, typ PlanType, price decimal.Decimal, currency string, interval BillingInterval) (*Plan, error) {
	if id == "" || name == "" || !typ.Valid() || price.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	if typ == PlanTypeFree && (interval != BillingIntervalNone || !price.IsZero()) {
		return nil, domain.ErrInvalidArgument
	}
	if typ != PlanTypeFree && interval == BillingIntervalNone {
		return nil, domain.ErrInvalidArgument
	}
	if currency == "" {
		currency = "usd"
	}
	return &Plan{
		ID:              id,
		Name:            name,
		Type:            typ,
		Price:           price,
		Currency:        currency,
		BillingInterval: interval,
		CreatedAt:       time.Now(),
	}, nil
}

// DefaultFreePlan is the implicit plan of a user without an ACTIVE subscription.
func DefaultFreePlan() *Plan {
	return &Plan{ID: "", Name: "Free", Type: PlanTypeFree, Price: decimal.Zero, Currency: "usd"}
}
