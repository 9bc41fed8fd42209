package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics counts checkout outcomes and tender usage.
type CheckoutMetrics struct {
	outcomes *prometheus.CounterVec
	tenders  *prometheus.CounterVec
	devices  *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	m := &CheckoutMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_checkout_total",
			Help: "Checkouts by terminal state.",
		}, []string{"state"}),
		tenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_checkout_tenders_total",
			Help: "Accepted tenders by method.",
		}, []string{"method"}),
		devices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_device_errors_total",
			Help: "Device capability failures.",
		}, []string{"device"}),
	}
	reg.MustRegister(m.outcomes, m.tenders, m.devices)
	return m
}

func (m *CheckoutMetrics) IncOutcome(state string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(state)).Inc()
}

func (m *CheckoutMetrics) IncTender(method string) {
	if m == nil || m.tenders == nil {
		return
	}
	m.tenders.WithLabelValues(normalizeLabel(method)).Inc()
}

func (m *CheckoutMetrics) IncDeviceError(device string) {
	if m == nil || m.devices == nil {
		return
	}
	m.devices.WithLabelValues(normalizeLabel(device)).Inc()
}
