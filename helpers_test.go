package tailz

import (
	"context"
	"sync"
	"time"
)

var testEpoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func traceID(n byte) TraceID {
	return TraceID{15: n}
}

func spanID(n byte) SpanID {
	if n == 0 {
		return SpanID{}
	}
	return SpanID{7: n}
}

// testSpan builds a finished span; parent 0 makes it a root.
func testSpan(trace, id, parent byte, start time.Time, d time.Duration) Span {
	return Span{
		TraceID:      traceID(trace),
		SpanID:       spanID(id),
		ParentSpanID: spanID(parent),
		Name:         "op",
		StartTime:    start,
		EndTime:      start.Add(d),
	}
}

// recordingDispatcher remembers every dispatched trace.
type recordingDispatcher struct {
	err    error
	traces map[TraceID][]Span
	order  []TraceID
	calls  int
	mu     sync.Mutex
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{traces: make(map[TraceID][]Span)}
}

func (r *recordingDispatcher) Dispatch(_ context.Context, id TraceID, spans []Span) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	cp := make([]Span, len(spans))
	copy(cp, spans)
	r.traces[id] = append(r.traces[id], cp...)
	r.order = append(r.order, id)
	return nil
}

func (r *recordingDispatcher) spans(id TraceID) []Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.traces[id]
}

func (r *recordingDispatcher) dispatched() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *recordingDispatcher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// countingReporter counts the signals it receives.
type countingReporter struct {
	finalized map[Reason]int
	decisions map[Decision]int
	ingested  int
	rejected  int
	created   int
	late      int
	failures  int
	sweeps    int
	mu        sync.Mutex
}

func newCountingReporter() *countingReporter {
	return &countingReporter{
		finalized: make(map[Reason]int),
		decisions: make(map[Decision]int),
	}
}

func (c *countingReporter) SpanIngested() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ingested++
}

func (c *countingReporter) SpanRejected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected++
}

func (c *countingReporter) TraceCreated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created++
}

func (c *countingReporter) LateSpan() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.late++
}

func (c *countingReporter) TraceFinalized(reason Reason, decision Decision, _ int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalized[reason]++
	c.decisions[decision]++
}

func (c *countingReporter) DispatchFailed(error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
}

func (c *countingReporter) SweepCompleted(time.Duration, int, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweeps++
}
