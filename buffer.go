package tailz

import (
	"time"
)

// Rollup is the trace-level summary maintained incrementally as spans arrive.
type Rollup struct {
	// CreatedAt is when the first span of the trace was buffered.
	CreatedAt time.Time
	// LastActivityAt is when the most recent span was buffered.
	LastActivityAt time.Time
	// StartTime is the earliest span start seen.
	StartTime time.Time
	// EndTime is the latest span end seen.
	EndTime      time.Time
	SpanCount    int
	TraceID      TraceID
	HasError     bool
	ExplicitDone bool
}

// Duration is the wall time covered by the buffered spans.
func (r Rollup) Duration() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.Before(r.StartTime) {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// TraceBuffer accumulates the spans of one trace in arrival order.
//
// While the buffer sits in a Registry it is guarded by its shard lock and only
// the registry touches it. Once ScanAndRemove hands it out, the caller is the
// sole owner.
//
//nolint:govet // Field order optimized for functionality over memory
type TraceBuffer struct {
	spans        []Span
	createdAt    time.Time
	lastActivity time.Time
	start        time.Time
	end          time.Time
	traceID      TraceID
	reason       Reason
	hasError     bool
	explicitDone bool
}

func newTraceBuffer(id TraceID, now time.Time) *TraceBuffer {
	return &TraceBuffer{
		traceID:      id,
		spans:        make([]Span, 0, 4),
		createdAt:    now,
		lastActivity: now,
	}
}

// append adds a span and folds it into the rollup state.
func (b *TraceBuffer) append(span Span, now time.Time, root bool) {
	if len(b.spans) >= cap(b.spans) {
		b.grow()
	}
	b.spans = append(b.spans, span)

	b.touch(now)
	if span.Status == StatusError {
		b.hasError = true
	}
	if root {
		b.explicitDone = true
	}
	if !span.StartTime.IsZero() && (b.start.IsZero() || span.StartTime.Before(b.start)) {
		b.start = span.StartTime
	}
	if span.EndTime.After(b.end) {
		b.end = span.EndTime
	}
}

// grow doubles small buffers and grows large ones by half to limit churn.
func (b *TraceBuffer) grow() {
	currentCap := cap(b.spans)
	var newCap int
	if currentCap < 1024 {
		newCap = currentCap * 2
	} else {
		newCap = currentCap + currentCap/2
	}
	if newCap < 4 {
		newCap = 4
	}
	grown := make([]Span, len(b.spans), newCap)
	copy(grown, b.spans)
	b.spans = grown
}

// touch moves lastActivity forward, never backward.
func (b *TraceBuffer) touch(now time.Time) {
	if now.After(b.lastActivity) {
		b.lastActivity = now
	}
}

func (b *TraceBuffer) markDone(now time.Time) {
	b.explicitDone = true
	b.touch(now)
}

// TraceID returns the id of the buffered trace.
func (b *TraceBuffer) TraceID() TraceID {
	return b.traceID
}

// Reason returns why the trace was finalized, or ReasonNone while it is
// still buffered.
func (b *TraceBuffer) Reason() Reason {
	return b.reason
}

// Len returns the number of buffered spans.
func (b *TraceBuffer) Len() int {
	return len(b.spans)
}

// Spans returns the buffered spans in arrival order.
// Only call this on a buffer that has been removed from its registry.
func (b *TraceBuffer) Spans() []Span {
	return b.spans
}

// Rollup returns a snapshot of the trace-level state.
func (b *TraceBuffer) Rollup() Rollup {
	return Rollup{
		TraceID:        b.traceID,
		SpanCount:      len(b.spans),
		CreatedAt:      b.createdAt,
		LastActivityAt: b.lastActivity,
		StartTime:      b.start,
		EndTime:        b.end,
		HasError:       b.hasError,
		ExplicitDone:   b.explicitDone,
	}
}
