package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobRunsTotal,
		jobDuration,
		outboxMessagesTotal,
	)
}

var (
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_runs_total",
			Help: "Background job ticks by job and result.",
		},
		[]string{"job", "result"}, // result: 'ok', 'error', 'skipped'
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Duration of one background job tick in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"job"},
	)

	outboxMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_messages_total",
			Help: "Outbox deliveries by kind and result.",
		},
		[]string{"kind", "result"}, // result: 'sent', 'retry', 'dead'
	)
)

func ObserveJob(job, result string, d time.Duration) {
	jobRunsTotal.WithLabelValues(norm(job), norm(result)).Inc()
	jobDuration.WithLabelValues(norm(job)).Observe(d.Seconds())
}

func IncOutbox(kind, result string) {
	outboxMessagesTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}
