// Package metrics holds the till's Prometheus collectors on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pos"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	registry   *prometheus.Registry
	checkouts  *prometheus.CounterVec
	refreshes  *prometheus.CounterVec
	replays    *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkouts by mode (online, offline) and result.",
		}, []string{"mode", "result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refreshes_total",
			Help:      "Full cache refreshes from the remote store by result.",
		}, []string{"result"}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_replays_total",
			Help:      "Queued offline purchases replayed, by outcome.",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offline_queue_depth",
			Help:      "Purchases waiting in the offline queue.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.checkouts,
		m.refreshes,
		m.replays,
		m.queueDepth,
	)
	return m
}

func (m *Metrics) ObserveCheckout(mode, result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) ObserveRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveReplay(outcome string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
