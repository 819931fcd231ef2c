package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"collab-billing/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ToCents converts major units to minor units as round(amount * 100).
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts minor units back to major units.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Proration is the price difference for the rest of the current billing cycle.
type Proration struct {
	CurrentPlanID    string          `json:"current_plan_id"`
	NewPlanID        string          `json:"new_plan_id"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	NewPrice         decimal.Decimal `json:"new_price"`
	TotalDays        int             `json:"total_days"`
	RemainingDays    int             `json:"remaining_days"`
	RemainingValue   decimal.Decimal `json:"remaining_value"`
	ProratedNewValue decimal.Decimal `json:"prorated_new_value"`
	Amount           decimal.Decimal `json:"amount"`
}

// Charge is the amount billed for the upgrade, never negative.
func (p Proration) Charge() decimal.Decimal {
	if p.Amount.IsNegative() {
		return decimal.Zero
	}
	return p.Amount
}

const day = 24 * time.Hour

// Prorate prices an upgrade from currentPlan to newPlan at now.
// current may be nil when the user is on the implicit free plan.
// Rank validation is done here so every caller gets ErrInvalidUpgrade for non-upgrades.
func Prorate(current *Subscription, currentPlan, newPlan *Plan, now time.Time) (Proration, error) {
	if currentPlan == nil || newPlan == nil {
		return Proration{}, domain.ErrInvalidArgument
	}
	if newPlan.Type.Rank() <= currentPlan.Type.Rank() {
		return Proration{}, domain.ErrInvalidUpgrade
	}

	p := Proration{
		CurrentPlanID: currentPlan.ID,
		NewPlanID:     newPlan.ID,
		CurrentPrice:  currentPlan.Price,
		NewPrice:      newPlan.Price,
	}

	if current == nil || currentPlan.IsFree() || current.EndDate == nil {
		p.CurrentPrice = decimal.Zero
		p.TotalDays = newPlan.BillingInterval.Days()
		p.RemainingDays = p.TotalDays
	} else {
		p.TotalDays = int(math.Round(current.EndDate.Sub(current.StartDate).Hours() / 24))
		if p.TotalDays <= 0 {
			p.TotalDays = currentPlan.BillingInterval.Days()
		}
		p.RemainingDays = int(math.Ceil(float64(current.EndDate.Sub(now)) / float64(day)))
		if p.RemainingDays < 0 {
			p.RemainingDays = 0
		}
		if p.RemainingDays > p.TotalDays {
			p.RemainingDays = p.TotalDays
		}
	}

	if p.TotalDays <= 0 {
		p.RemainingValue = decimal.Zero
		p.ProratedNewValue = p.NewPrice
		p.Amount = p.NewPrice
		return p, nil
	}

	total := decimal.NewFromInt(int64(p.TotalDays))
	remaining := decimal.NewFromInt(int64(p.RemainingDays))
	p.RemainingValue = p.CurrentPrice.Div(total).Mul(remaining).Round(2)
	p.ProratedNewValue = p.NewPrice.Div(total).Mul(remaining).Round(2)
	p.Amount = p.ProratedNewValue.Sub(p.RemainingValue)
	return p, nil
}
