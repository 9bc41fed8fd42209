package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// ShiftMetrics tracks drawer reconciliation outcomes.
type ShiftMetrics struct {
	closed   *prometheus.CounterVec
	variance *prometheus.GaugeVec
}

func NewShiftMetrics(reg prometheus.Registerer) *ShiftMetrics {
	if reg == nil {
		return &ShiftMetrics{}
	}
	m := &ShiftMetrics{
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_shift_closed_total",
			Help: "Closed shifts by whether the drawer balanced.",
		}, []string{"register", "balanced"}),
		variance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pos_shift_last_variance",
			Help: "Counted minus expected cash of the last closed shift.",
		}, []string{"register"}),
	}
	reg.MustRegister(m.closed, m.variance)
	return m
}

func (m *ShiftMetrics) ObserveVariance(register string, variance decimal.Decimal) {
	if m == nil || m.closed == nil {
		return
	}
	balanced := "true"
	if !variance.IsZero() {
		balanced = "false"
	}
	m.closed.WithLabelValues(normalizeLabel(register), balanced).Inc()
	m.variance.WithLabelValues(normalizeLabel(register)).Set(variance.InexactFloat64())
}
