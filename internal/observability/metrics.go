// Package observability owns the Prometheus metric set. Packages do not
// register metrics themselves; the main event loop observes scheduler and
// gateway events and records them here.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector with its registry.
type Metrics struct {
	Registry *prometheus.Registry

	// Monitoring loop.
	MonitorCycles  *prometheus.CounterVec // result label: busy|free
	WindowSamples  prometheus.Histogram
	BusyWriteFails prometheus.Counter

	// Reservation path.
	Reservations *prometheus.CounterVec // outcome label: found|not_found

	// Cleanup sweep.
	ExpiredSlots prometheus.Counter
}

// New creates and registers the metric set on a fresh registry.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		MonitorCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomwatch_monitor_cycles_total",
			Help: "Completed sampling windows by aggregate result",
		}, []string{"result"}),
		WindowSamples: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roomwatch_monitor_window_samples",
			Help:    "Detector samples gathered per sampling window",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		BusyWriteFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomwatch_monitor_busy_write_failures_total",
			Help: "Busy bit writes that failed against the store",
		}),
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomwatch_reservations_total",
			Help: "Reservation attempts by outcome",
		}, []string{"outcome"}),
		ExpiredSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomwatch_expired_slots_total",
			Help: "Slots removed by the expiry sweep",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.MonitorCycles,
		m.WindowSamples,
		m.BusyWriteFails,
		m.Reservations,
		m.ExpiredSlots,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordCycle counts one completed sampling window.
func (m *Metrics) RecordCycle(busy bool, samples int) {
	result := "free"
	if busy {
		result = "busy"
	}
	m.MonitorCycles.WithLabelValues(result).Inc()
	m.WindowSamples.Observe(float64(samples))
}

// RecordReservation counts one reservation attempt outcome.
func (m *Metrics) RecordReservation(outcome string) {
	m.Reservations.WithLabelValues(outcome).Inc()
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
