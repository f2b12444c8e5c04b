package tailz

import (
	"time"
)

// Reason records why a trace was considered complete.
type Reason uint8

const (
	ReasonNone Reason = iota
	// ReasonRootFinished means the closing signal for the trace was observed.
	ReasonRootFinished
	// ReasonInactive means no span arrived within the inactivity timeout.
	ReasonInactive
	// ReasonEvicted means the trace was forced out to respect the span ceiling.
	ReasonEvicted
	// ReasonFlushed means the sampler was flushed, typically on shutdown.
	ReasonFlushed
)

func (r Reason) String() string {
	switch r {
	case ReasonRootFinished:
		return "root_finished"
	case ReasonInactive:
		return "inactive"
	case ReasonEvicted:
		return "evicted"
	case ReasonFlushed:
		return "flushed"
	default:
		return "none"
	}
}

// Detector decides whether a buffered trace is done.
type Detector struct {
	// InactivityTimeout is how long a trace may go without a new span before
	// it is completed regardless of the closing signal.
	InactivityTimeout time.Duration
}

// Complete reports whether b is done at now, and why.
// A trace is done once its closing signal was seen, or once
// now - last activity reaches the inactivity timeout.
func (d Detector) Complete(b *TraceBuffer, now time.Time) (Reason, bool) {
	if b.explicitDone {
		return ReasonRootFinished, true
	}
	if now.Sub(b.lastActivity) >= d.InactivityTimeout {
		return ReasonInactive, true
	}
	return ReasonNone, false
}

// predicate binds the detector to now for Registry.ScanAndRemove. Traces in
// evict are completed even if the detector would keep them. The chosen reason
// is stamped on the buffer as it leaves the registry.
func (d Detector) predicate(now time.Time, evict map[TraceID]struct{}) func(*TraceBuffer) bool {
	return func(b *TraceBuffer) bool {
		reason, ok := d.Complete(b, now)
		if !ok {
			if _, forced := evict[b.traceID]; forced {
				reason, ok = ReasonEvicted, true
			}
		}
		if ok {
			b.reason = reason
		}
		return ok
	}
}

// flushAll completes every trace it is applied to.
func flushAll(b *TraceBuffer) bool {
	b.reason = ReasonFlushed
	return true
}
