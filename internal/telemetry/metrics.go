package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	Members = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "membership",
			Name:      "members",
			Help:      "Members in the local table by status.",
		},
		[]string{"status"},
	)

	SelfHeartbeat = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "membership",
			Name:      "heartbeat",
			Help:      "Heartbeat counter of the local member.",
		},
	)

	SelfIncarnation = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "membership",
			Name:      "incarnation",
			Help:      "Incarnation of the local member.",
		},
	)

	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "messages_received_total",
			Help:      "Decoded datagrams by command.",
		},
		[]string{"command"},
	)

	MessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "messages_dropped_total",
			Help:      "Datagrams discarded before reaching the table.",
		},
		[]string{"reason"},
	)

	GossipSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "gossip_sent_total",
			Help:      "Gossip datagrams handed to the transport.",
		},
	)

	SendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "send_failures_total",
			Help:      "Sends the transport rejected.",
		},
	)

	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "transitions_total",
			Help:      "Status transitions applied to peers, by target status.",
		},
		[]string{"to"},
	)

	Evictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "evictions_total",
			Help:      "Failed members removed after the cleanup timeout.",
		},
	)

	Refutations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "refutations_total",
			Help:      "Incarnation bumps made to refute suspicion of this node.",
		},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "membership",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		Members, SelfHeartbeat, SelfIncarnation,
		MessagesReceived, MessagesDropped,
		GossipSent, SendFailures,
		Transitions, Evictions, Refutations,
		uptime,
	)
}

// MetricsHandler exposes the registry. Mount it at /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
