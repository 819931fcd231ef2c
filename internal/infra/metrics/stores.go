package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		dbPoolConns,
		dbPoolEmptyAcquires,
		cacheLookupsTotal,
	)
}

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billing_db_pool_connections",
			Help: "Postgres pool connections by state.",
		},
		[]string{"state"}, // total | idle | acquired | max
	)

	dbPoolEmptyAcquires = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "billing_db_pool_empty_acquires",
			Help: "Cumulative acquires that had to wait for a connection.",
		},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_cache_lookups_total",
			Help: "Redis cache lookups by cache and result.",
		},
		[]string{"cache", "result"}, // cache: plan | plans | status
	)
)

// PoolStats mirrors the pgxpool counters we export.
type PoolStats struct {
	Total, Idle, Acquired, Max int32
	EmptyAcquires              int64
}

func SetDBPoolStats(s PoolStats) {
	dbPoolConns.WithLabelValues("total").Set(float64(s.Total))
	dbPoolConns.WithLabelValues("idle").Set(float64(s.Idle))
	dbPoolConns.WithLabelValues("acquired").Set(float64(s.Acquired))
	dbPoolConns.WithLabelValues("max").Set(float64(s.Max))
	dbPoolEmptyAcquires.Set(float64(s.EmptyAcquires))
}

func IncCacheLookup(cache, result string) {
	cacheLookupsTotal.WithLabelValues(norm(cache), norm(result)).Inc()
}
