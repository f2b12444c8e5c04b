package tailz

import "time"

// Reporter receives the sampler's own operational signals, separate from the
// traces being sampled. Implementations must be safe for concurrent use and
// must not block; the metrics package provides a Prometheus implementation.
type Reporter interface {
	// SpanIngested is called once per span accepted by Ingest.
	SpanIngested()
	// SpanRejected is called for spans offered after Close.
	SpanRejected()
	// TraceCreated is called when a span opens a new trace buffer.
	TraceCreated()
	// LateSpan is called when a new buffer opens for a trace id that was
	// recently finalized.
	LateSpan()
	// TraceFinalized is called once per trace after the policy ran.
	TraceFinalized(reason Reason, decision Decision, spans int)
	// DispatchFailed is called when the dispatcher rejects a kept trace.
	DispatchFailed(err error)
	// SweepCompleted is called after every scan step.
	SweepCompleted(elapsed time.Duration, finalized, bufferedTraces, bufferedSpans int)
}

// NopReporter discards every signal.
type NopReporter struct{}

var _ Reporter = NopReporter{}

func (NopReporter) SpanIngested() {}
func (NopReporter) SpanRejected() {}
func (NopReporter) TraceCreated() {}
func (NopReporter) LateSpan() {}
func (NopReporter) TraceFinalized(Reason, Decision, int) {}
func (NopReporter) DispatchFailed(error) {}
func (NopReporter) SweepCompleted(time.Duration, int, int, int) {}
