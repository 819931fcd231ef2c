package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(buildInfo, startTime) }

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billing_build_info",
			Help: "Always 1; labels carry the build identity.",
		},
		[]string{"version", "commit", "goversion"},
	)

	startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "billing_start_time_seconds",
			Help: "Unix time the process finished wiring.",
		},
	)
)

// SetBuildInfo publishes the build labels and stamps the start time.
func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
	startTime.Set(float64(time.Now().Unix()))
}
