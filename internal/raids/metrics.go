package raids

import "github.com/prometheus/client_golang/prometheus"

var (
	buildCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raidsync",
		Subsystem: "raids",
		Name:      "details_built_total",
		Help:      "Raid details built from activity history, by parsed difficulty.",
	}, []string{"difficulty"})

	augmentFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "raidsync",
		Subsystem: "raids",
		Name:      "augment_failures_total",
		Help:      "After-action report fetches that failed during enrichment.",
	})
)

func init() {
	prometheus.MustRegister(buildCounter, augmentFailures)
}
