// Package metrics holds the Prometheus collectors for scrape cycles.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "werete"

// Cycle outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeExhausted = "exhausted"
	OutcomeFailed    = "failed"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal         *prometheus.CounterVec
	CycleDuration       *prometheus.HistogramVec
	AdapterFetchTotal   *prometheus.CounterVec
	HistoryEntriesTotal *prometheus.CounterVec
	OverridesActive     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Scrape cycles by domain and outcome",
		}, []string{"domain", "outcome"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Scrape cycle duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"domain"}),
		AdapterFetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_fetch_total",
			Help:      "Source adapter fetches by result",
		}, []string{"source", "result"}),
		HistoryEntriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_entries_total",
			Help:      "History entries written by asset",
		}, []string{"asset"}),
		OverridesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "manual_overrides_active",
			Help:      "Number of active manual price overrides",
		}),
	}
	m.registry.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.AdapterFetchTotal,
		m.HistoryEntriesTotal,
		m.OverridesActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveCycle(domain, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(domain, outcome).Inc()
	m.CycleDuration.WithLabelValues(domain).Observe(d.Seconds())
}

func (m *Metrics) ObserveFetch(source string, ok bool) {
	if m == nil {
		return
	}
	result := "empty"
	if ok {
		result = "ok"
	}
	m.AdapterFetchTotal.WithLabelValues(source, result).Inc()
}

func (m *Metrics) AddHistory(asset string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.HistoryEntriesTotal.WithLabelValues(asset).Add(float64(n))
}

func (m *Metrics) SetOverrides(n int) {
	if m == nil {
		return
	}
	m.OverridesActive.Set(float64(n))
}
