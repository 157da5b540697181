// Package metrics holds the prometheus collectors of the shared cart service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sharedcart"

type Metrics struct {
	Resolves *prometheus.CounterVec
	Shares   *prometheus.CounterVec
	Imports  *prometheus.CounterVec
	Swept    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolves_total",
			Help:      "Shared cart resolutions by serving tier and outcome",
		}, []string{"source", "result"}),
		Shares: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shares_total",
			Help:      "Share attempts by outcome",
		}, []string{"result"}),
		Imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Imports of resolved shared carts by merge policy",
		}, []string{"policy"}),
		Swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_snapshots_total",
			Help:      "Expired shared carts removed by housekeeping",
		}),
	}
	reg.MustRegister(m.Resolves, m.Shares, m.Imports, m.Swept)
	return m
}

func (m *Metrics) ObserveResolve(source, result string) {
	if m == nil {
		return
	}
	m.Resolves.WithLabelValues(source, result).Inc()
}

func (m *Metrics) ObserveShare(result string) {
	if m == nil {
		return
	}
	m.Shares.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveImport(policy string) {
	if m == nil {
		return
	}
	m.Imports.WithLabelValues(policy).Inc()
}

func (m *Metrics) ObserveSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Swept.Add(float64(n))
}
