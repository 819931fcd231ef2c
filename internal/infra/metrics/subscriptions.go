package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionTransitionsTotal,
		renewalsTotal,
		activeSubscriptions,
		expiryRemindersTotal,
		expiringSoon,
	)
}

var (
	subscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Lifecycle operations that produced a new ACTIVE row, by operation and plan type.",
		},
		[]string{"operation", "plan_type"}, // operation: 'upgrade', 'downgrade', 'signup'
	)

	renewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_renewals_total",
			Help: "Renewal attempts by result.",
		},
		[]string{"result"}, // 'renewed', 'declined', 'max_retries', 'skipped', 'error'
	)

	activeSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_active",
			Help: "Current number of ACTIVE subscriptions by plan type.",
		},
		[]string{"plan_type"},
	)

	expiryRemindersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_expiry_reminders_total",
			Help: "Total number of expiry reminders queued.",
		},
	)

	expiringSoon = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "subscriptions_expiring_soon",
			Help: "ACTIVE subscriptions ending within the widest reminder threshold.",
		},
	)
)

func IncSubscriptionTransition(operation, planType string) {
	subscriptionTransitionsTotal.WithLabelValues(norm(operation), norm(planType)).Inc()
}

func IncRenewal(result string) {
	renewalsTotal.WithLabelValues(norm(result)).Inc()
}

func SetActiveSubscriptions(byPlanType map[string]int) {
	for typ, n := range byPlanType {
		activeSubscriptions.WithLabelValues(norm(typ)).Set(float64(n))
	}
}

func AddExpiryReminders(n int) {
	expiryRemindersTotal.Add(float64(n))
}

func SetExpiringSoon(n int) {
	expiringSoon.Set(float64(n))
}
