// Package metrics exposes Prometheus instrumentation for the daemon.
//
// Each Metrics value owns its registry, so tests and multiple daemons in
// one process never collide on registration.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "carlot"

// Metrics holds the daemon's collectors.
type Metrics struct {
	registry *prometheus.Registry

	// RPCRequests counts handled RPC calls.
	// Labels: method, transport (unix, websocket), kind (ok or an error kind)
	RPCRequests *prometheus.CounterVec

	// RPCDuration measures handler latency.
	// Labels: method
	RPCDuration *prometheus.HistogramVec

	// MessagesSent counts stored messages by type and whether they were
	// replies.
	MessagesSent *prometheus.CounterVec

	// Notifications counts notification queue outcomes.
	// Labels: outcome (delivered, retried, failed, dropped)
	Notifications *prometheus.CounterVec

	// RateLimited counts sends rejected by the per-user limiter.
	RateLimited prometheus.Counter

	// WebSocketConnections tracks open WebSocket connections.
	WebSocketConnections prometheus.Gauge
}

// New creates and registers the collectors on a fresh registry, including
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "RPC requests by method, transport and result kind.",
		}, []string{"method", "transport", "kind"}),
		RPCDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "RPC handler latency.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method"}),
		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "sent_total",
			Help:      "Messages stored, by message type and reply flag.",
		}, []string{"message_type", "reply"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "outcomes_total",
			Help:      "Notification queue outcomes.",
		}, []string{"outcome"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "rate_limited_total",
			Help:      "Sends rejected by the per-user rate limiter.",
		}),
		WebSocketConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections",
			Help:      "Open WebSocket connections.",
		}),
	}
}

// ObserveRPC records one handled call.
func (m *Metrics) ObserveRPC(method, transport, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RPCRequests.WithLabelValues(method, transport, kind).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// MessageSent records a stored message.
func (m *Metrics) MessageSent(messageType string, reply bool) {
	if m == nil {
		return
	}
	r := "false"
	if reply {
		r = "true"
	}
	m.MessagesSent.WithLabelValues(messageType, r).Inc()
}

// NotificationOutcome records a queue outcome. It matches notify.Observer.
func (m *Metrics) NotificationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}

// SendRateLimited records a rejected send.
func (m *Metrics) SendRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
