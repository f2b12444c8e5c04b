// Package metrics exposes the sampler's own operational signals as
// Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zoobzio/tailz"
)

const namespace = "tailz"

// Reporter implements tailz.Reporter with Prometheus collectors.
type Reporter struct {
	spansIngested   prometheus.Counter
	spansRejected   prometheus.Counter
	tracesCreated   prometheus.Counter
	lateSpans       prometheus.Counter
	dispatchErrors  prometheus.Counter
	tracesFinalized *prometheus.CounterVec
	traceSpans      prometheus.Histogram
	sweepDuration   prometheus.Histogram
	bufferedTraces  prometheus.Gauge
	bufferedSpans   prometheus.Gauge
}

var _ tailz.Reporter = (*Reporter)(nil)

// NewReporter registers the sampler metrics with reg. It panics if any of
// them is already registered, like promauto.
func NewReporter(reg prometheus.Registerer) *Reporter {
	f := promauto.With(reg)
	return &Reporter{
		spansIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spans_ingested_total",
			Help:      "The total number of spans buffered by the sampler",
		}),
		spansRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spans_rejected_total",
			Help:      "The total number of spans offered after the sampler was closed",
		}),
		tracesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traces_created_total",
			Help:      "The total number of trace buffers opened",
		}),
		lateSpans: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_spans_total",
			Help:      "The total number of spans arriving for a recently finalized trace",
		}),
		dispatchErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_errors_total",
			Help:      "The total number of kept traces the dispatcher rejected",
		}),
		tracesFinalized: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traces_finalized_total",
			Help:      "The total number of traces decided, by completion reason and decision",
		}, []string{"reason", "decision"}),
		traceSpans: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trace_spans",
			Help:      "Number of spans per finalized trace",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Time spent scanning the registry per sweep",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		bufferedTraces: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffered_traces",
			Help:      "Traces awaiting a decision after the last sweep",
		}),
		bufferedSpans: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffered_spans",
			Help:      "Spans awaiting a decision after the last sweep",
		}),
	}
}

func (r *Reporter) SpanIngested() { r.spansIngested.Inc() }

func (r *Reporter) SpanRejected() { r.spansRejected.Inc() }

func (r *Reporter) TraceCreated() { r.tracesCreated.Inc() }

func (r *Reporter) LateSpan() { r.lateSpans.Inc() }

func (r *Reporter) TraceFinalized(reason tailz.Reason, decision tailz.Decision, spans int) {
	r.tracesFinalized.WithLabelValues(reason.String(), decision.String()).Inc()
	r.traceSpans.Observe(float64(spans))
}

func (r *Reporter) DispatchFailed(error) { r.dispatchErrors.Inc() }

func (r *Reporter) SweepCompleted(elapsed time.Duration, _, bufferedTraces, bufferedSpans int) {
	r.sweepDuration.Observe(elapsed.Seconds())
	r.bufferedTraces.Set(float64(bufferedTraces))
	r.bufferedSpans.Set(float64(bufferedSpans))
}
