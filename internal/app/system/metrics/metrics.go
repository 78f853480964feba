// Package metrics exposes realtime counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/dalemusser/travelsync/internal/app/system/hub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsSource is satisfied by *hub.Hub.
type StatsSource interface {
	Stats() hub.Stats
}

// Realtime holds the collectors the session layer updates directly.
type Realtime struct {
	Events   *prometheus.CounterVec
	Rejected *prometheus.CounterVec
	Limited  prometheus.Counter
}

// NewRealtime registers the realtime collectors on reg. Gauges for live
// sessions and groups are read from src at scrape time.
func NewRealtime(reg prometheus.Registerer, src StatsSource) *Realtime {
	m := &Realtime{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "travelsync",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Client events handled, by event name.",
		}, []string{"event"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "travelsync",
			Subsystem: "realtime",
			Name:      "rejected_connections_total",
			Help:      "Connection attempts refused before upgrade, by reason.",
		}, []string{"reason"}),
		Limited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "travelsync",
			Subsystem: "realtime",
			Name:      "throttled_events_total",
			Help:      "Client events dropped by the per-session rate limit.",
		}),
	}

	reg.MustRegister(
		m.Events,
		m.Rejected,
		m.Limited,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "travelsync",
			Subsystem: "realtime",
			Name:      "sessions",
			Help:      "Live realtime sessions.",
		}, func() float64 { return float64(src.Stats().Sessions) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "travelsync",
			Subsystem: "realtime",
			Name:      "groups",
			Help:      "Groups with at least one subscribed session.",
		}, func() float64 { return float64(src.Stats().Groups) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "travelsync",
			Subsystem: "realtime",
			Name:      "dropped_frames_total",
			Help:      "Outbound frames dropped because a session queue was full.",
		}, func() float64 { return float64(src.Stats().Dropped) }),
	)
	return m
}

// Event counts one handled client event. Safe on a nil receiver.
func (m *Realtime) Event(name string) {
	if m != nil {
		m.Events.WithLabelValues(name).Inc()
	}
}

// Reject counts one refused connection. Safe on a nil receiver.
func (m *Realtime) Reject(reason string) {
	if m != nil {
		m.Rejected.WithLabelValues(reason).Inc()
	}
}

// Throttled counts one rate-limited event. Safe on a nil receiver.
func (m *Realtime) Throttled() {
	if m != nil {
		m.Limited.Inc()
	}
}

// Handler serves the registry's metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
