package raidsync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	modeFull        = "full"
	modeIncremental = "incremental"
)

var (
	syncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "raidsync",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Duration of sync runs by mode and outcome.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"mode", "outcome"})

	recordsAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raidsync",
		Subsystem: "sync",
		Name:      "raids_appended_total",
		Help:      "Raid details appended to user histories.",
	}, []string{"mode"})
)

func init() {
	prometheus.MustRegister(syncDuration, recordsAppended)
}

func observeSync(mode string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	syncDuration.WithLabelValues(mode, outcome).Observe(time.Since(start).Seconds())
}
