package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Lookups          *prometheus.CounterVec
	RecomputeLatency prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowops_stats_lookups_total",
			Help: "Dashboard snapshot lookups, by source (local, shared, recompute)",
		}, []string{"source"}),
		RecomputeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "escrowops_stats_recompute_duration_seconds",
			Help:    "Time to recompute the dashboard snapshot",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ObserveLookup(source string) {
	m.Lookups.WithLabelValues(source).Inc()
}

// ObserveRecompute records one recompute. Call with time.Now() at its start.
func (m *Metrics) ObserveRecompute(start time.Time) {
	m.RecomputeLatency.Observe(time.Since(start).Seconds())
}
