package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Penlect/emqxlwm2m/metric"
)

// Metrics holds Prometheus metrics for the correlation engine
type Metrics struct {
	commandsIssued     *prometheus.CounterVec
	commandsCompleted  prometheus.Counter
	commandsTimedOut   prometheus.Counter
	commandsCancelled  prometheus.Counter
	unmatchedEnvelopes prometheus.Counter
	malformedEnvelopes prometheus.Counter
	notifyDelivered    prometheus.Counter
	notifyStale        prometheus.Counter
	pendingRequests    prometheus.Gauge
	activeObservations prometheus.Gauge
}

// newMetrics creates and registers engine metrics. Returns nil when no
// registry is provided (nil input = nil feature pattern).
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		commandsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "engine",
			Name:      "commands_issued_total",
			Help:      "Commands issued, by message type",
		}, []string{"msg_type"}),
		commandsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "engine",
			Name:      "commands_completed_total",
			Help:      "Commands completed by a matching response",
		}),
		commandsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "engine",
			Name:      "commands_timeout_total",
			Help:      "Commands that expired without a response",
		}),
		commandsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "engine",
			Name:      "commands_cancelled_total",
			Help:      "Commands cancelled before completion",
		}),
		unmatchedEnvelopes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "engine",
			Name:      "unmatched_envelopes_total",
			Help:      "Inbound envelopes matching no pending request or observation",
		}),
		malformedEnvelopes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "engine",
			Name:      "malformed_envelopes_total",
			Help:      "Inbound payloads that failed to decode",
		}),
		notifyDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "engine",
			Name:      "notifications_delivered_total",
			Help:      "Notifications forwarded to observation sinks",
		}),
		notifyStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "engine",
			Name:      "notifications_stale_total",
			Help:      "Notifications dropped for stale or duplicate sequence numbers",
		}),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "engine",
			Name:      "pending_requests",
			Help:      "In-flight commands awaiting a response",
		}),
		activeObservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "engine",
			Name:      "active_observations",
			Help:      "Currently active observations",
		}),
	}

	registry.RegisterCounterVec("engine", "commands_issued", metrics.commandsIssued)
	registry.RegisterCounter("engine", "commands_completed", metrics.commandsCompleted)
	registry.RegisterCounter("engine", "commands_timeout", metrics.commandsTimedOut)
	registry.RegisterCounter("engine", "commands_cancelled", metrics.commandsCancelled)
	registry.RegisterCounter("engine", "unmatched_envelopes", metrics.unmatchedEnvelopes)
	registry.RegisterCounter("engine", "malformed_envelopes", metrics.malformedEnvelopes)
	registry.RegisterCounter("engine", "notifications_delivered", metrics.notifyDelivered)
	registry.RegisterCounter("engine", "notifications_stale", metrics.notifyStale)
	registry.RegisterGauge("engine", "pending_requests", metrics.pendingRequests)
	registry.RegisterGauge("engine", "active_observations", metrics.activeObservations)

	return metrics
}
