package authz

import "github.com/prometheus/client_golang/prometheus"

var (
	gateDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raidsync",
		Subsystem: "authz",
		Name:      "gate_decisions_total",
		Help:      "Gated operations allowed or denied by authorization state.",
	}, []string{"decision"})

	refreshOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raidsync",
		Subsystem: "authz",
		Name:      "token_refresh_total",
		Help:      "Background token refresh attempts by outcome.",
	}, []string{"outcome"})

	linkOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raidsync",
		Subsystem: "authz",
		Name:      "account_link_total",
		Help:      "Authorization code redemptions by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(gateDecisions, refreshOutcomes, linkOutcomes)
}
