package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit log and its forwarder.
type Metrics struct {
	EntriesAppended  *prometheus.CounterVec
	AppendFailures   prometheus.Counter
	AppendDuration   prometheus.Histogram
	EntriesForwarded prometheus.Counter
	ForwardFailures  prometheus.Counter
	ForwarderLastSeq prometheus.Gauge
}

// New creates a new Metrics instance with all audit metrics registered.
func New() *Metrics {
	return &Metrics{
		EntriesAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowops_audit_entries_total",
			Help: "Audit entries appended, by outcome",
		}, []string{"outcome"}),
		AppendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escrowops_audit_append_failures_total",
			Help: "Audit appends that failed; each failed the enclosing action",
		}),
		AppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "escrowops_audit_append_duration_seconds",
			Help:    "Duration of audit appends",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		EntriesForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escrowops_audit_entries_forwarded_total",
			Help: "Audit entries published to the SIEM topic",
		}),
		ForwardFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escrowops_audit_forward_failures_total",
			Help: "Forwarder batches that failed to publish",
		}),
		ForwarderLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "escrowops_audit_forwarder_last_seq",
			Help: "Highest sequence number acknowledged by the SIEM topic",
		}),
	}
}

// ObserveAppend records one successful append.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveAppend(outcome string, start time.Time) {
	m.EntriesAppended.WithLabelValues(outcome).Inc()
	m.AppendDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementAppendFailures() {
	m.AppendFailures.Inc()
}

// ObserveForwarded records a published batch ending at lastSeq.
func (m *Metrics) ObserveForwarded(n int, lastSeq uint64) {
	m.EntriesForwarded.Add(float64(n))
	m.ForwarderLastSeq.Set(float64(lastSeq))
}

func (m *Metrics) IncrementForwardFailures() {
	m.ForwardFailures.Inc()
}
