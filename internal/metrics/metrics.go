package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	WSConnections    prometheus.Gauge
	WSEventsReceived *prometheus.CounterVec
	WSEventsDropped  *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "riffchat",
			Name:      "ws_connections",
			Help:      "Open realtime connections.",
		}),
		WSEventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riffchat",
			Name:      "ws_events_received_total",
			Help:      "Client events received by type.",
		}, []string{"type"}),
		WSEventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riffchat",
			Name:      "ws_events_dropped_total",
			Help:      "Client events dropped by reason.",
		}, []string{"reason"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riffchat",
			Name:      "messages_sent_total",
			Help:      "Messages stored by message type.",
		}, []string{"type"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riffchat",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status.",
		}, []string{"method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "riffchat",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(
		m.WSConnections,
		m.WSEventsReceived,
		m.WSEventsDropped,
		m.MessagesSent,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}
