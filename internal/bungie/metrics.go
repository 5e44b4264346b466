package bungie

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "raidsync",
	Subsystem: "bungie",
	Name:      "request_duration_seconds",
	Help:      "Latency of Bungie.net calls grouped by operation and outcome.",
	Buckets:   prometheus.ExponentialBuckets(0.025, 2, 10),
}, []string{"operation", "outcome"})

func init() {
	prometheus.MustRegister(requestDuration)
}

func observeRequest(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	requestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}
