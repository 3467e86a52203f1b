// Package promadapter wires github.com/prometheus/client_golang into
// fastex.MetricsCollector.
package promadapter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements fastex.MetricsCollector using a set of Prometheus
// vectors labeled by backend name ("local", "remote", "composite").
type Adapter struct {
	requests *prometheus.CounterVec
	allowed  *prometheus.CounterVec
	denied   *prometheus.CounterVec
	errors   *prometheus.CounterVec
	failOpen *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New registers the collector's metrics on reg and returns the
// adapter.
func New(reg prometheus.Registerer) *Adapter {
	a := &Adapter{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fastex_requests_total",
			Help: "Total CheckLimit calls per backend.",
		}, []string{"backend"}),
		allowed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fastex_allowed_total",
			Help: "Total admitted decisions per backend.",
		}, []string{"backend"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fastex_denied_total",
			Help: "Total rejected decisions per backend.",
		}, []string{"backend"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fastex_errors_total",
			Help: "Total CheckLimit errors per backend.",
		}, []string{"backend"}),
		failOpen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fastex_fail_open_total",
			Help: "Total requests admitted via FallbackMode=ALLOW.",
		}, []string{"backend"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fastex_check_limit_duration_seconds",
			Help:    "CheckLimit call latency per backend.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
	}
	reg.MustRegister(a.requests, a.allowed, a.denied, a.errors, a.failOpen, a.latency)
	return a
}

func (a *Adapter) RecordRequest(backend string)  { a.requests.WithLabelValues(backend).Inc() }
func (a *Adapter) RecordAllowed(backend string)  { a.allowed.WithLabelValues(backend).Inc() }
func (a *Adapter) RecordDenied(backend string)   { a.denied.WithLabelValues(backend).Inc() }
func (a *Adapter) RecordError(backend string)    { a.errors.WithLabelValues(backend).Inc() }
func (a *Adapter) RecordFailOpen(backend string) { a.failOpen.WithLabelValues(backend).Inc() }

func (a *Adapter) RecordLatency(backend string, d time.Duration) {
	a.latency.WithLabelValues(backend).Observe(d.Seconds())
}
