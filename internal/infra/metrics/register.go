package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	defaultOnce sync.Once
	collectors  []prometheus.Collector
)

// register queues collectors from each file's init; nothing is exported until MustRegister.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister exports every queued collector on the default registry. Safe to call more than once.
func MustRegister() {
	defaultOnce.Do(func() { MustRegisterWith(prometheus.DefaultRegisterer) })
}

// MustRegisterWith exports the collectors on reg; it panics on duplicates.
func MustRegisterWith(reg prometheus.Registerer) {
	reg.MustRegister(collectors...)
}
