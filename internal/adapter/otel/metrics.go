package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "packetmill"

// Metrics bundles the instruments the services record into. Services hold
// a nil *Metrics until SetMetrics is called, so every field access on their
// side is guarded.
type Metrics struct {
	RunsStarted   metric.Int64Counter
	RunsCompleted metric.Int64Counter
	RunsFailed    metric.Int64Counter
	RunsCancelled metric.Int64Counter
	RunDuration   metric.Float64Histogram
	BatchesRun    metric.Int64Counter
	QueueDepth    metric.Int64UpDownCounter
}

// NewMetrics registers every instrument on the global meter provider.
func NewMetrics() (*Metrics, error) {
	b := instrumentSet{meter: otel.Meter(meterName)}
	m := &Metrics{
		RunsStarted:   b.counter("packetmill.runs.started", "Runs started"),
		RunsCompleted: b.counter("packetmill.runs.completed", "Runs that completed successfully"),
		RunsFailed:    b.counter("packetmill.runs.failed", "Runs that ended in failure"),
		RunsCancelled: b.counter("packetmill.runs.cancelled", "Runs cancelled mid-flight"),
		RunDuration:   b.histogram("packetmill.run.duration_seconds", "Run duration in seconds"),
		BatchesRun:    b.counter("packetmill.batches.run", "Batch executions started"),
		QueueDepth:    b.upDown("packetmill.queue.depth", "Projects currently waiting in the execution queue"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// instrumentSet keeps the first registration error so NewMetrics reads as a
// flat list instead of seven error checks.
type instrumentSet struct {
	meter metric.Meter
	err   error
}

func (s *instrumentSet) counter(name, desc string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithDescription(desc))
	if s.err == nil {
		s.err = err
	}
	return c
}

func (s *instrumentSet) histogram(name, desc string) metric.Float64Histogram {
	h, err := s.meter.Float64Histogram(name, metric.WithDescription(desc))
	if s.err == nil {
		s.err = err
	}
	return h
}

func (s *instrumentSet) upDown(name, desc string) metric.Int64UpDownCounter {
	c, err := s.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	if s.err == nil {
		s.err = err
	}
	return c
}
