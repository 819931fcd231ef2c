package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(workerTasksTotal, workerQueueDepth)
}

// Worker task outcomes.
const (
	TaskOK       = "ok"
	TaskError    = "error"
	TaskPanic    = "panic"
	TaskRejected = "rejected"
)

var (
	workerTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_worker_tasks_total",
			Help: "Worker pool tasks by pool and outcome.",
		},
		[]string{"pool", "outcome"},
	)

	workerQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billing_worker_queue_depth",
			Help: "Tasks waiting for a free worker.",
		},
		[]string{"pool"},
	)
)

func IncWorkerTask(pool, outcome string) {
	workerTasksTotal.WithLabelValues(norm(pool), norm(outcome)).Inc()
}

func SetWorkerQueueDepth(pool string, n int) {
	workerQueueDepth.WithLabelValues(norm(pool)).Set(float64(n))
}
