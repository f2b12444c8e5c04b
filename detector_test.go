package tailz

import (
	"testing"
	"time"
)

func TestDetectorComplete(t *testing.T) {
	d := Detector{InactivityTimeout: 5 * time.Second}

	b := newTraceBuffer(traceID(1), testEpoch)
	b.append(testSpan(1, 2, 1, testEpoch, 0), testEpoch, false)

	if _, done := d.Complete(b, testEpoch.Add(4*time.Second)); done {
		t.Error("Trace should still be open before the timeout")
	}
	if reason, done := d.Complete(b, testEpoch.Add(5*time.Second)); !done || reason != ReasonInactive {
		t.Errorf("Expected inactive at the timeout, got %v %v", reason, done)
	}

	b.append(testSpan(1, 1, 0, testEpoch, 0), testEpoch.Add(time.Second), true)
	if reason, done := d.Complete(b, testEpoch.Add(time.Second)); !done || reason != ReasonRootFinished {
		t.Errorf("Expected root_finished after the root span, got %v %v", reason, done)
	}
}

func TestDetectorActivityExtendsDeadline(t *testing.T) {
	d := Detector{InactivityTimeout: 5 * time.Second}
	b := newTraceBuffer(traceID(1), testEpoch)
	b.append(testSpan(1, 2, 1, testEpoch, 0), testEpoch, false)
	b.append(testSpan(1, 3, 1, testEpoch, 0), testEpoch.Add(3*time.Second), false)

	if _, done := d.Complete(b, testEpoch.Add(7*time.Second)); done {
		t.Error("A later span should push the deadline out")
	}
	if _, done := d.Complete(b, testEpoch.Add(8*time.Second)); !done {
		t.Error("Expected completion 5s after the last span")
	}
}

func TestDetectorPredicateStampsReason(t *testing.T) {
	d := Detector{InactivityTimeout: time.Minute}
	fresh := newTraceBuffer(traceID(1), testEpoch)
	forced := newTraceBuffer(traceID(2), testEpoch)

	pred := d.predicate(testEpoch, map[TraceID]struct{}{traceID(2): {}})
	if pred(fresh) {
		t.Error("Fresh trace should not complete")
	}
	if fresh.Reason() != ReasonNone {
		t.Errorf("Open trace should keep ReasonNone, got %v", fresh.Reason())
	}
	if !pred(forced) || forced.Reason() != ReasonEvicted {
		t.Errorf("Expected forced trace to be evicted, got %v", forced.Reason())
	}

	if !flushAll(fresh) || fresh.Reason() != ReasonFlushed {
		t.Errorf("Expected flushed, got %v", fresh.Reason())
	}
}

func TestReasonString(t *testing.T) {
	cases := map[Reason]string{
		ReasonNone:         "none",
		ReasonRootFinished: "root_finished",
		ReasonInactive:     "inactive",
		ReasonEvicted:      "evicted",
		ReasonFlushed:      "flushed",
	}
	for r, want := range cases {
		if r.String() != want {
			t.Errorf("Expected %q, got %q", want, r.String())
		}
	}
}

func TestTraceBufferRollup(t *testing.T) {
	b := newTraceBuffer(traceID(3), testEpoch)

	child := testSpan(3, 2, 1, testEpoch.Add(100*time.Millisecond), 200*time.Millisecond)
	child.Status = StatusError
	root := testSpan(3, 1, 0, testEpoch, 250*time.Millisecond)

	b.append(child, testEpoch.Add(time.Second), false)
	b.append(root, testEpoch.Add(2*time.Second), true)
	// Clock skew must not move activity backwards.
	b.touch(testEpoch)

	r := b.Rollup()
	if r.SpanCount != 2 {
		t.Errorf("Expected 2 spans, got %d", r.SpanCount)
	}
	if !r.HasError {
		t.Error("Expected HasError")
	}
	if !r.ExplicitDone {
		t.Error("Expected ExplicitDone after the root span")
	}
	if got := r.Duration(); got != 300*time.Millisecond {
		t.Errorf("Expected duration 300ms from earliest start to latest end, got %v", got)
	}
	if !r.CreatedAt.Equal(testEpoch) {
		t.Errorf("Expected CreatedAt %v, got %v", testEpoch, r.CreatedAt)
	}
	if !r.LastActivityAt.Equal(testEpoch.Add(2 * time.Second)) {
		t.Errorf("Expected LastActivityAt at the last append, got %v", r.LastActivityAt)
	}
}

func TestTraceBufferGrowth(t *testing.T) {
	b := newTraceBuffer(traceID(1), testEpoch)
	for i := 0; i < 2000; i++ {
		b.append(Span{Name: "op"}, testEpoch, false)
	}
	if b.Len() != 2000 {
		t.Errorf("Expected 2000 spans, got %d", b.Len())
	}
	if (Rollup{}).Duration() != 0 {
		t.Error("Empty rollup should have zero duration")
	}
}
