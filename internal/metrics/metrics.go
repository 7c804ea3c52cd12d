// Package metrics exposes prometheus instrumentation for backend calls,
// poll ticks and exports.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pipeline_monitor"

// Metrics implements apiclient.Observer, poller.TickObserver and
// export.Observer.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	PollTicksTotal  *prometheus.CounterVec
	ExportsTotal    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Backend API requests by host, endpoint and outcome",
			},
			[]string{"host", "endpoint", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Backend API request latency in seconds",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"host", "endpoint"},
		),
		PollTicksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_ticks_total",
				Help:      "Poll ticks by slot and outcome",
			},
			[]string{"slot", "outcome"},
		),
		ExportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_total",
				Help:      "Exports by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
	}
}

func (m *Metrics) ObserveRequest(host, endpoint, outcome string, latency time.Duration) {
	m.RequestsTotal.WithLabelValues(host, endpoint, outcome).Inc()
	m.RequestDuration.WithLabelValues(host, endpoint).Observe(latency.Seconds())
}

func (m *Metrics) ObservePoll(slot, outcome string) {
	m.PollTicksTotal.WithLabelValues(slot, outcome).Inc()
}

func (m *Metrics) ObserveExport(mode, outcome string) {
	m.ExportsTotal.WithLabelValues(mode, outcome).Inc()
}
