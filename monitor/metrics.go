package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	normalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "htlc_bridge",
		Subsystem: "monitor",
		Name:      "events_total",
		Help:      "Normalized events published on the bus.",
	}, []string{"chain", "kind"})

	malformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "htlc_bridge",
		Subsystem: "monitor",
		Name:      "malformed_events_total",
		Help:      "Native events skipped because their payload could not be decoded.",
	}, []string{"chain"})

	gaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "htlc_bridge",
		Subsystem: "monitor",
		Name:      "gaps_total",
		Help:      "Sequence gaps detected in live streams.",
	}, []string{"chain"})

	resubscriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "htlc_bridge",
		Subsystem: "monitor",
		Name:      "resubscriptions_total",
		Help:      "Live stream reconnections.",
	}, []string{"chain"})
)
