package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry    *prometheus.Registry
	saves       *prometheus.CounterVec
	clears      prometheus.Counter
	subscribers prometheus.Gauge
	broadcasts  prometheus.Counter
	dropped     prometheus.Counter
	fanout      *prometheus.CounterVec
}

// NewMetrics registers the store server's collectors on a private registry
// so several servers can coexist in one process.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentiboard_results_saved_total",
			Help: "Save requests by outcome and predicted class.",
		}, []string{"outcome", "class"}),
		clears: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentiboard_clears_total",
			Help: "Successful clear-data requests.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentiboard_realtime_subscribers",
			Help: "Open websocket subscriptions.",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentiboard_realtime_broadcasts_total",
			Help: "data-updated events published.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentiboard_realtime_dropped_total",
			Help: "Events skipped for subscribers whose buffer was full.",
		}),
		fanout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentiboard_fanout_messages_total",
			Help: "Cross-instance fan-out messages by direction.",
		}, []string{"direction"}),
	}
	m.registry.MustRegister(m.saves, m.clears, m.subscribers, m.broadcasts, m.dropped, m.fanout)
	return m
}

func (m *Metrics) broadcast(dropped int) {
	m.broadcasts.Inc()
	if dropped > 0 {
		m.dropped.Add(float64(dropped))
	}
}
