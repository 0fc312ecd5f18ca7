package governor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	reservations *prometheus.CounterVec
	issued       *prometheus.GaugeVec
}

// WithMetrics registers with reg a reservations counter, labelled by kind
// and outcome (granted or denied), and a gauge of the current scope's
// usage per kind.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(g *Governor) {
		factory := promauto.With(reg)
		g.metrics = &metrics{
			reservations: factory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bulkstore_governor_reservations_total",
					Help: "Quota reservations by resource kind and outcome",
				},
				[]string{"kind", "outcome"},
			),
			issued: factory.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "bulkstore_governor_issued",
					Help: "Reservations granted in the current scope by resource kind",
				},
				[]string{"kind"},
			),
		}
	}
}

// usage sets the per-scope gauges. Callers hold the governor lock.
func (m *metrics) usage(queries, writes int) {
	if m == nil {
		return
	}
	m.issued.WithLabelValues(string(KindQuery)).Set(float64(queries))
	m.issued.WithLabelValues(string(KindWriteBatch)).Set(float64(writes))
}

// observe is a no-op without WithMetrics.
func (m *metrics) observe(kind Kind, granted bool) {
	if m == nil {
		return
	}
	outcome := "granted"
	if !granted {
		outcome = "denied"
	}
	m.reservations.WithLabelValues(string(kind), outcome).Inc()
}
