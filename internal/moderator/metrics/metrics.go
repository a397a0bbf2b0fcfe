package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts authorization decisions and capability changes.
type Metrics struct {
	AuthorizationDecisions *prometheus.CounterVec
	CapabilityChanges      *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		AuthorizationDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowops_moderator_authorization_decisions_total",
			Help: "Capability checks, by capability and result",
		}, []string{"capability", "allowed"}),
		CapabilityChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowops_moderator_capability_changes_total",
			Help: "Capability writes, by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveDecision(capability string, allowed bool) {
	result := "false"
	if allowed {
		result = "true"
	}
	m.AuthorizationDecisions.WithLabelValues(capability, result).Inc()
}

func (m *Metrics) IncrementChange(outcome string) {
	m.CapabilityChanges.WithLabelValues(outcome).Inc()
}
