package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RuleUpdates   *prometheus.CounterVec
	UpdateRejects *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		RuleUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowops_fees_rule_updates_total",
			Help: "Fee rules replaced, by network",
		}, []string{"network"}),
		UpdateRejects: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowops_fees_update_rejections_total",
			Help: "Fee updates rejected, by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) IncrementUpdate(network string) {
	m.RuleUpdates.WithLabelValues(network).Inc()
}

func (m *Metrics) IncrementReject(reason string) {
	m.UpdateRejects.WithLabelValues(reason).Inc()
}
