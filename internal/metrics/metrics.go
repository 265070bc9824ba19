// Package metrics provides Prometheus metrics for dynhost.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "dynhost"

var (
	// BuildInfo is always 1, labelled with the running version.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build information about dynhost.",
	}, []string{"version", "go_version"})

	// UpdatesTotal counts record updates by zone and result.
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "updates_total",
		Help:      "Record updates by zone and result.",
	}, []string{"zone", "result"})

	// ReconcileDuration observes lookup plus apply time per zone.
	ReconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "reconcile_duration_seconds",
		Help:      "Time spent looking up and replacing records.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"zone"})

	// PortalSessionsTotal counts portal sessions by the step they ended in.
	PortalSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "portal_sessions_total",
		Help:      "Portal sessions by final step and result.",
	}, []string{"step", "result"})

	// RequestsTotal counts update responses by status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "requests_total",
		Help:      "Update requests by response code.",
	}, []string{"code"})
)

// SetBuildInfo publishes the build info gauge.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// Recorder writes to the package metrics. The zero value is ready to use.
type Recorder struct{}

// ObserveUpdate records one reconcile of zone.
func (Recorder) ObserveUpdate(zone, result string, elapsed time.Duration) {
	UpdatesTotal.WithLabelValues(zone, result).Inc()
	ReconcileDuration.WithLabelValues(zone).Observe(elapsed.Seconds())
}

// ObservePortal records a finished portal session.
func (Recorder) ObservePortal(step, result string) {
	PortalSessionsTotal.WithLabelValues(step, result).Inc()
}

// ObserveRequest records one update response.
func (Recorder) ObserveRequest(code int) {
	RequestsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}
