// Package metrics holds process-level Prometheus metrics. Module metrics live
// next to their module.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds HTTP transport metrics.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	BuildInfo       *prometheus.GaugeVec
}

// New creates and registers the transport metrics.
func New() *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "escrowops_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		BuildInfo: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "escrowops_build_info",
			Help: "Build information, always 1",
		}, []string{"version"}),
	}
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(method, route string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}

// SetBuildInfo publishes the running version.
func (m *Metrics) SetBuildInfo(version string) {
	if m == nil {
		return
	}
	m.BuildInfo.WithLabelValues(version).Set(1)
}
