package activity

import "github.com/prometheus/client_golang/prometheus"

var (
	pagesFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raidsync",
		Subsystem: "activity",
		Name:      "pages_consumed_total",
		Help:      "Activity history pages consumed in page order.",
	}, []string{"mode"})

	recordsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raidsync",
		Subsystem: "activity",
		Name:      "records_emitted_total",
		Help:      "Activity records yielded to callers.",
	}, []string{"mode"})
)

func init() {
	prometheus.MustRegister(pagesFetched, recordsEmitted)
}
