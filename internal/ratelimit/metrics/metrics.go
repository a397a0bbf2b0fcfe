package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejections  *prometheus.CounterVec
	StoreErrors prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowops_ratelimit_rejections_total",
			Help: "Requests rejected by the rate limiter, by endpoint class",
		}, []string{"class"}),
		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escrowops_ratelimit_store_errors_total",
			Help: "Rate limit checks that failed open because the counter store errored",
		}),
	}
}

func (m *Metrics) IncrementRejection(class string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(class).Inc()
}

func (m *Metrics) IncrementStoreError() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}
