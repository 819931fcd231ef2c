package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		httpRequestDuration,
		rateLimitTriggeredTotal,
		usageEventsTotal,
	)
}

var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP handler latency by route pattern, method and status code.",
			Buckets: []float64{0.005, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method", "code"},
	)

	rateLimitTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_triggered_total",
			Help: "Total number of times users have been rate-limited, by action.",
		},
		[]string{"action"},
	)

	usageEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_events_total",
			Help: "Usage counter adjustments reported by clients.",
		},
		[]string{"counter"},
	)
)

func ObserveHTTP(route, method string, code int, d time.Duration) {
	httpRequestDuration.WithLabelValues(route, method, strconv.Itoa(code)).Observe(d.Seconds())
}

func IncRateLimitTriggered(action string) {
	rateLimitTriggeredTotal.WithLabelValues(norm(action)).Inc()
}

func IncUsage(counter string) {
	usageEventsTotal.WithLabelValues(norm(counter)).Inc()
}
