package tailz

import (
	"math/rand/v2"
	"regexp"
	"slices"
	"time"
)

// Decision is the outcome of evaluating a policy against a whole trace.
type Decision uint8

const (
	// Drop discards the trace.
	Drop Decision = iota
	// Keep forwards the trace to the dispatcher.
	Keep
)

func (d Decision) String() string {
	if d == Keep {
		return "keep"
	}
	return "drop"
}

// Policy decides whether a completed trace is kept.
//
// Implementations must not modify the rollup or the spans, and must always
// return a decision: a policy that could fail belongs in BuildPolicy, where the
// failure is reported before any trace is seen.
type Policy interface {
	Evaluate(r Rollup, spans []Span) Decision
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(r Rollup, spans []Span) Decision

// Evaluate calls f(r, spans).
func (f PolicyFunc) Evaluate(r Rollup, spans []Span) Decision {
	return f(r, spans)
}

func keepIf(ok bool) Decision {
	if ok {
		return Keep
	}
	return Drop
}

// AlwaysKeep keeps every trace.
func AlwaysKeep() Policy {
	return PolicyFunc(func(Rollup, []Span) Decision { return Keep })
}

// AlwaysDrop drops every trace.
func AlwaysDrop() Policy {
	return PolicyFunc(func(Rollup, []Span) Decision { return Drop })
}

// ErrorBiased keeps traces containing at least one span with error status.
func ErrorBiased() Policy {
	return PolicyFunc(func(r Rollup, _ []Span) Decision {
		return keepIf(r.HasError)
	})
}

// DurationThreshold keeps traces whose spans cover at least threshold, from
// the earliest span start to the latest span end.
func DurationThreshold(threshold time.Duration) Policy {
	return PolicyFunc(func(r Rollup, _ []Span) Decision {
		return keepIf(r.Duration() >= threshold)
	})
}

// SpanCount keeps traces with at least minSpans spans and, when maxSpans is
// positive, at most maxSpans.
func SpanCount(minSpans, maxSpans int) Policy {
	return PolicyFunc(func(r Rollup, _ []Span) Decision {
		if r.SpanCount < minSpans {
			return Drop
		}
		return keepIf(maxSpans <= 0 || r.SpanCount <= maxSpans)
	})
}

// AttributeMatch keeps traces where any span carries key with the given value.
// A nil value matches on the presence of key alone. A []string attribute
// matches when it contains value.
func AttributeMatch(key string, value any) Policy {
	want := value
	if want != nil {
		want = normalizeValue(want)
	}
	return PolicyFunc(func(_ Rollup, spans []Span) Decision {
		for i := range spans {
			got, ok := spans[i].Attribute(key)
			if !ok {
				continue
			}
			if want == nil || attributeEquals(got, want) {
				return Keep
			}
		}
		return Drop
	})
}

func attributeEquals(got, want any) bool {
	if g, ok := got.([]string); ok {
		w, ok := want.(string)
		return ok && slices.Contains(g, w)
	}
	if _, ok := want.([]string); ok {
		return false
	}
	if g, w, ok := asFloats(got, want); ok {
		return g == w
	}
	return got == want
}

// asFloats lets int64 and float64 values compare by value, since JSON config
// decodes every number as float64 while span attributes keep integers.
func asFloats(a, b any) (float64, float64, bool) {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	return fa, fb, okA && okB
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// NameMatch keeps traces where any span name matches re.
func NameMatch(re *regexp.Regexp) Policy {
	return PolicyFunc(func(_ Rollup, spans []Span) Decision {
		for i := range spans {
			if re.MatchString(spans[i].Name) {
				return Keep
			}
		}
		return Drop
	})
}

// Probabilistic keeps each trace independently with probability p.
// draw must return values uniformly distributed in [0, 1); nil uses math/rand.
// p is clamped to [0, 1].
func Probabilistic(p float64, draw func() float64) Policy {
	if draw == nil {
		draw = rand.Float64
	}
	p = min(max(p, 0), 1)
	return PolicyFunc(func(Rollup, []Span) Decision {
		return keepIf(draw() < p)
	})
}

// RateLimited keeps traces while limiter has budget left in the current
// window and drops the rest.
func RateLimited(limiter *RateLimiter) Policy {
	return PolicyFunc(func(Rollup, []Span) Decision {
		return keepIf(limiter.Allow())
	})
}

// And keeps a trace only if every policy keeps it. Evaluation stops at the
// first Drop, so later policies (including rate limiters) are not consulted.
// And with no policies keeps everything.
func And(policies ...Policy) Policy {
	return PolicyFunc(func(r Rollup, spans []Span) Decision {
		for _, p := range policies {
			if p.Evaluate(r, spans) == Drop {
				return Drop
			}
		}
		return Keep
	})
}

// Or keeps a trace if any policy keeps it. Evaluation stops at the first Keep.
// Or with no policies drops everything.
func Or(policies ...Policy) Policy {
	return PolicyFunc(func(r Rollup, spans []Span) Decision {
		for _, p := range policies {
			if p.Evaluate(r, spans) == Keep {
				return Keep
			}
		}
		return Drop
	})
}

// Not inverts p.
func Not(p Policy) Policy {
	return PolicyFunc(func(r Rollup, spans []Span) Decision {
		return keepIf(p.Evaluate(r, spans) == Drop)
	})
}
