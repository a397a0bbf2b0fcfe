package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Requests      *prometheus.CounterVec
	Confirmations *prometheus.CounterVec
	Expired       *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowops_gate_requests_total",
			Help: "Phase-one requests for destructive actions, by kind and outcome",
		}, []string{"kind", "outcome"}),
		Confirmations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowops_gate_confirmations_total",
			Help: "Phase-two confirmations, by kind and outcome",
		}, []string{"kind", "outcome"}),
		Expired: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowops_gate_expired_total",
			Help: "Pending intents rejected by the sweeper after their window lapsed",
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncrementRequest(kind, outcome string) {
	m.Requests.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) IncrementConfirmation(kind, outcome string) {
	m.Confirmations.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) IncrementExpired(kind string) {
	m.Expired.WithLabelValues(kind).Inc()
}
