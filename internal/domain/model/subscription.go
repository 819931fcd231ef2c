package model

import (
	"time"

	"github.com/google/uuid"

	"collab-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive      SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCancelled   SubscriptionStatus = "CANCELLED"
	SubscriptionStatusDeactivated SubscriptionStatus = "DEACTIVATED"
)

// ExpiringSoonWindow is how far ahead a paid subscription counts as expiring soon.
const ExpiringSoonWindow = 7 * 24 * time.Hour

// transitions lists the statuses each status may move to. Superseded rows are terminal.
var transitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusActive: {SubscriptionStatusCancelled, SubscriptionStatusDeactivated},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to SubscriptionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type UsageCounter string

const (
	UsageProjects   UsageCounter = "projects"
	UsageTeams      UsageCounter = "teams"
	UsageMembers    UsageCounter = "members"
	UsageAIChat     UsageCounter = "ai_chat"
	UsageAITask     UsageCounter = "ai_task"
	UsageAIWorkflow UsageCounter = "ai_workflow"
)

// UsageCounters are carried from row to row on every lifecycle transition.
type UsageCounters struct {
	Projects   int `json:"current_projects"`
	Teams      int `json:"current_teams"`
	Members    int `json:"current_members"`
	AIChat     int `json:"current_ai_chat"`
	AITask     int `json:"current_ai_task"`
	AIWorkflow int `json:"current_ai_workflow"`
}

// Add returns a copy with counter adjusted by delta, floored at zero.
func (u UsageCounters) Add(counter UsageCounter, delta int) (UsageCounters, error) {
	var p *int
	switch counter {
	case UsageProjects:
		p = &u.Projects
	case UsageTeams:
		p = &u.Teams
	case UsageMembers:
		p = &u.Members
	case UsageAIChat:
		p = &u.AIChat
	case UsageAITask:
		p = &u.AITask
	case UsageAIWorkflow:
		p = &u.AIWorkflow
	default:
		return u, domain.ErrInvalidArgument
	}
	*p += delta
	if *p < 0 {
		*p = 0
	}
	return u, nil
}

// Subscription is one row of a user's subscription history.
type Subscription struct {
	ID                  string
	UserID              string
	PlanID              string
	Status              SubscriptionStatus
	StartDate           time.Time
	EndDate             *time.Time // nil for FREE
	AutoRenew           bool
	PaymentMethodID     *string
	Usage               UsageCounters
	LastRenewalAttempt  *time.Time
	RenewalFailureCount int

	// RenewalDeclines counts definitive declines for the current period and
	// selects the charge idempotency key.
	RenewalDeclines int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewSubscription builds an ACTIVE row for plan starting at now, carrying usage forward.
// FREE plans never expire and never auto-renew.
func NewSubscription(userID string, plan *Plan, usage UsageCounters, autoRenew bool, paymentMethodID *string, now time.Time) (*Subscription, error) {
	if userID == "" || plan == nil {
		return nil, domain.ErrInvalidArgument
	}
	s := &Subscription{
		ID:              uuid.NewString(),
		UserID:          userID,
		PlanID:          plan.ID,
		Status:          SubscriptionStatusActive,
		StartDate:       now,
		AutoRenew:       autoRenew,
		PaymentMethodID: paymentMethodID,
		Usage:           usage,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if plan.IsFree() {
		s.AutoRenew = false
		s.PaymentMethodID = nil
		return s, nil
	}
	end := plan.BillingInterval.AddTo(now)
	s.EndDate = &end
	return s, nil
}

func (s *Subscription) IsActive() bool { return s != nil && s.Status == SubscriptionStatusActive }

// TransitionTo moves the row to a terminal status.
func (s *Subscription) TransitionTo(to SubscriptionStatus, now time.Time) error {
	if !CanTransition(s.Status, to) {
		return domain.ErrInvalidTransition
	}
	s.Status = to
	s.AutoRenew = false
	s.UpdatedAt = now
	return nil
}

// IsExpiringSoon reports end_date in (now, now+7d].
func (s *Subscription) IsExpiringSoon(now time.Time) bool {
	return s != nil && IsExpiringSoon(s.EndDate, now)
}

func IsExpiringSoon(end *time.Time, now time.Time) bool {
	if end == nil {
		return false
	}
	return end.After(now) && !end.After(now.Add(ExpiringSoonWindow))
}

// RenewalWindowOpen reports whether now >= end_date - window.
func (s *Subscription) RenewalWindowOpen(now time.Time, window time.Duration) bool {
	if s.EndDate == nil {
		return false
	}
	return !now.Before(s.EndDate.Add(-window))
}

// Extend advances end_date by one billing interval and clears the failure counter.
func (s *Subscription) Extend(plan *Plan, now time.Time) {
	base := now
	if s.EndDate != nil {
		base = *s.EndDate
	}
	end := plan.BillingInterval.AddTo(base)
	s.EndDate = &end
	s.RenewalFailureCount = 0
	s.RenewalDeclines = 0
	s.LastRenewalAttempt = &now
	s.UpdatedAt = now
}

// RecordRenewalFailure counts a failed or pending charge without touching end_date.
// Only a definitive decline advances RenewalDeclines.
func (s *Subscription) RecordRenewalFailure(now time.Time, declined bool) {
	s.RenewalFailureCount++
	if declined {
		s.RenewalDeclines++
	}
	s.LastRenewalAttempt = &now
	s.UpdatedAt = now
}
