package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		refundsTotal,
		paymentStatusChecks,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by kind and status (completed/declined/pending).",
		},
		[]string{"kind", "status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_cents_total",
			Help: "The total monetary value of successful payments in minor units, labeled by currency.",
		},
		[]string{"currency"},
	)

	refundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "Refund attempts by result.",
		},
		[]string{"result"},
	)

	// source: poll|webhook|reconciler
	paymentStatusChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_status_checks_total",
			Help: "Gateway status checks by source and outcome.",
		},
		[]string{"source", "outcome"},
	)
)

func IncPayment(kind, status string) {
	paymentsTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func AddPaymentRevenue(currency string, cents int64) {
	if cents <= 0 {
		return
	}
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(cents))
}

func IncRefund(result string) {
	refundsTotal.WithLabelValues(norm(result)).Inc()
}

func IncPaymentStatusCheck(source, outcome string) {
	paymentStatusChecks.WithLabelValues(norm(source), norm(outcome)).Inc()
}
