package model

import (
	"math"
	"time"
)

// RetryPolicy bounds how often a failing operation may be re-attempted.
type RetryPolicy struct {
	MaxAttempts int
	Window      time.Duration // attempts older than this no longer block a retry
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// RenewalRetryPolicy: three failures within 24h block further renewal attempts.
func RenewalRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Window: 24 * time.Hour}
}

// OutboxRetryPolicy governs delivery of queued side effects such as emails.
func OutboxRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 8, BaseBackoff: 30 * time.Second, MaxBackoff: time.Hour}
}

// Exhausted reports whether failures have hit the ceiling and the last attempt is still inside the window.
func (p RetryPolicy) Exhausted(failures int, lastAttempt *time.Time, now time.Time) bool {
	if p.MaxAttempts <= 0 || failures < p.MaxAttempts {
		return false
	}
	if lastAttempt == nil {
		return false
	}
	return now.Sub(*lastAttempt) < p.Window
}

// GaveUp reports whether attempts have used up the budget permanently.
func (p RetryPolicy) GaveUp(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// Backoff returns min(base * 2^(attempt-1), max). attempt starts at 1.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 || p.BaseBackoff <= 0 {
		return 0
	}
	d := float64(p.BaseBackoff) * math.Pow(2, float64(attempt-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// NextAttempt is when attempt number attempt+1 may run.
func (p RetryPolicy) NextAttempt(attempt int, now time.Time) time.Time {
	return now.Add(p.Backoff(attempt))
}
