package model

import "time"

// UserStatus is the client-facing snapshot of a user's presence and subscription.
type UserStatus struct {
	UserID             string             `json:"user_id"`
	Online             bool               `json:"online"`
	LastSeenAt         *time.Time         `json:"last_seen_at,omitempty"`
	PlanID             string             `json:"plan_id,omitempty"`
	PlanType           PlanType           `json:"plan_type"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status,omitempty"`
	EndDate            *time.Time         `json:"end_date,omitempty"`
	IsExpiringSoon     bool               `json:"is_expiring_soon"`
	AutoRenewEnabled   bool               `json:"auto_renew_enabled"`
	FetchedAt          time.Time          `json:"fetched_at"`
}

// Refresh recomputes the time-derived flags against now.
func (s *UserStatus) Refresh(now time.Time, onlineWindow time.Duration) {
	s.IsExpiringSoon = IsExpiringSoon(s.EndDate, now)
	s.Online = s.LastSeenAt != nil && now.Sub(*s.LastSeenAt) <= onlineWindow
}
