package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "raidsync",
		Subsystem: "sync",
		Name:      "last_sync_timestamp_seconds",
		Help:      "Unix timestamp of the most recent sync watermark written for any user.",
	})
	lastEventPublishedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "raidsync",
		Subsystem: "outbox",
		Name:      "last_event_published_timestamp_seconds",
		Help:      "Unix timestamp of the most recent sync event published to Kafka.",
	})
)

func init() {
	prometheus.MustRegister(lastSyncGauge, lastEventPublishedGauge)
}

// RecordSyncPersisted updates the sync watermark gauge.
func RecordSyncPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSyncGauge.Set(float64(ts.Unix()))
}

// RecordEventPublished updates the publish watermark gauge.
func RecordEventPublished(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastEventPublishedGauge.Set(float64(ts.Unix()))
}
