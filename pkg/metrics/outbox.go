package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks sync queue depth and push outcomes.
type OutboxMetrics struct {
	pushes  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	frozen  *prometheus.CounterVec
	pending prometheus.Gauge
	stuck   prometheus.Gauge
	online  prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_outbox_push_total",
			Help: "Remote ledger pushes by operation type and result.",
		}, []string{"operation", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pos_outbox_push_duration_seconds",
			Help:    "Latency of remote ledger pushes.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		frozen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_outbox_frozen_total",
			Help: "Queue items that exhausted their retry budget.",
		}, []string{"operation"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pos_outbox_pending",
			Help: "Queue items still eligible for retry.",
		}),
		stuck: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pos_outbox_failed",
			Help: "Queue items frozen until an operator retries them.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pos_outbox_online",
			Help: "1 when the remote ledger is believed reachable.",
		}),
	}
	reg.MustRegister(m.pushes, m.latency, m.frozen, m.pending, m.stuck, m.online)
	return m
}

// ObservePush records one push attempt. result is "ok", "failed" or "unreachable".
func (m *OutboxMetrics) ObservePush(operation, result string, d time.Duration) {
	if m == nil || m.pushes == nil {
		return
	}
	op := normalizeLabel(operation)
	m.pushes.WithLabelValues(op, normalizeLabel(result)).Inc()
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

func (m *OutboxMetrics) IncFrozen(operation string) {
	if m == nil || m.frozen == nil {
		return
	}
	m.frozen.WithLabelValues(normalizeLabel(operation)).Inc()
}

// SetDepth publishes the current pending and frozen counts.
func (m *OutboxMetrics) SetDepth(pending, frozen int64) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(pending))
	m.stuck.Set(float64(frozen))
}

func (m *OutboxMetrics) SetOnline(online bool) {
	if m == nil || m.online == nil {
		return
	}
	if online {
		m.online.Set(1)
		return
	}
	m.online.Set(0)
}
