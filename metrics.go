package fastex

import "time"

// MetricsCollector decouples backends and the composite from any
// concrete metrics library. promadapter wraps prometheus/client_golang
// into this interface for production wiring.
type MetricsCollector interface {
	RecordRequest(backend string)
	RecordAllowed(backend string)
	RecordDenied(backend string)
	RecordError(backend string)
	RecordFailOpen(backend string)
	RecordLatency(backend string, d time.Duration)
}

// NoOpMetrics discards everything. It is the zero-value default.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordRequest(string)               {}
func (NoOpMetrics) RecordAllowed(string)                {}
func (NoOpMetrics) RecordDenied(string)                 {}
func (NoOpMetrics) RecordError(string)                  {}
func (NoOpMetrics) RecordFailOpen(string)               {}
func (NoOpMetrics) RecordLatency(string, time.Duration) {}
