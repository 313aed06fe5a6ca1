package relayer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "htlc_bridge",
		Subsystem: "relayer",
		Name:      "transitions_total",
		Help:      "Swap status transitions committed by the relayer.",
	}, []string{"from", "to"})

	handled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "htlc_bridge",
		Subsystem: "relayer",
		Name:      "events_handled_total",
		Help:      "Bus events handled, by kind and outcome.",
	}, []string{"kind", "result"})

	alerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "htlc_bridge",
		Subsystem: "relayer",
		Name:      "alerts_total",
		Help:      "Operator alerts raised.",
	}, []string{"operation"})

	sweepSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "htlc_bridge",
		Subsystem: "relayer",
		Name:      "sweep_swaps",
		Help:      "Swaps picked up by the last sweep.",
	})
)
