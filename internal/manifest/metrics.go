package manifest

import "github.com/prometheus/client_golang/prometheus"

var (
	hitCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raidsync",
		Subsystem: "manifest_cache",
		Name:      "hits_total",
		Help:      "Manifest lookups served from the cache.",
	}, []string{"entity_type"})

	missCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raidsync",
		Subsystem: "manifest_cache",
		Name:      "misses_total",
		Help:      "Manifest lookups that were not cached when requested.",
	}, []string{"entity_type"})

	fetchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raidsync",
		Subsystem: "manifest_cache",
		Name:      "upstream_fetches_total",
		Help:      "Manifest fetches issued to Bungie.net after coalescing.",
	}, []string{"entity_type"})
)

func init() {
	prometheus.MustRegister(hitCounter, missCounter, fetchCounter)
}
