package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the group pool.
type Metrics struct {
	Transitions       *prometheus.CounterVec
	AllocationRetries prometheus.Counter
	PoolExhausted     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowops_groups_transitions_total",
			Help: "Group lifecycle operations, by action and outcome",
		}, []string{"action", "outcome"}),
		AllocationRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escrowops_groups_allocation_retries_total",
			Help: "Allocation candidates lost to a concurrent caller",
		}),
		PoolExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escrowops_groups_pool_exhausted_total",
			Help: "Allocations that found no available group",
		}),
	}
}

func (m *Metrics) ObserveTransition(action, outcome string) {
	m.Transitions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) IncrementAllocationRetry() {
	m.AllocationRetries.Inc()
}

func (m *Metrics) IncrementExhausted() {
	m.PoolExhausted.Inc()
}
