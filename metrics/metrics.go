package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler exposes Prometheus metrics at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

var (
	// Sessions tracks live client sessions.
	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "driftboard_sessions",
		Help: "Live client sessions.",
	})

	// Rooms tracks rooms with at least one member.
	Rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "driftboard_rooms",
		Help: "Rooms with at least one member.",
	})

	// MessagesReceived counts inbound application frames.
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftboard_messages_received_total",
		Help: "Inbound application frames.",
	})

	// RelaysSent counts frames delivered to relay recipients.
	RelaysSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftboard_relays_sent_total",
		Help: "Frames delivered to relay recipients.",
	})

	// SendRetries counts additional send passes after a failed one.
	SendRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftboard_send_retries_total",
		Help: "Send passes retried after a failure.",
	})

	// SendFailures counts per-recipient deliveries abandoned after all passes.
	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftboard_send_failures_total",
		Help: "Deliveries abandoned after exhausting retries.",
	})

	// Evictions counts sessions reaped by the heartbeat scheduler.
	Evictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftboard_evictions_total",
		Help: "Sessions evicted for staleness.",
	})

	// SessionsDisplaced counts sessions replaced by a reconnect with the same
	// clientId.
	SessionsDisplaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftboard_sessions_displaced_total",
		Help: "Sessions replaced by a reconnecting client.",
	})
)
