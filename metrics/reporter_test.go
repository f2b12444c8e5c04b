package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/tailz"
)

func TestReporterCounters(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	r := NewReporter(reg)

	r.SpanIngested()
	r.SpanIngested()
	r.SpanRejected()
	r.TraceCreated()
	r.LateSpan()
	r.DispatchFailed(errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.spansIngested))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.spansRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.tracesCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.lateSpans))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dispatchErrors))
}

func TestReporterTraceFinalized(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	r := NewReporter(reg)

	r.TraceFinalized(tailz.ReasonRootFinished, tailz.Keep, 3)
	r.TraceFinalized(tailz.ReasonRootFinished, tailz.Keep, 5)
	r.TraceFinalized(tailz.ReasonInactive, tailz.Drop, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.tracesFinalized.WithLabelValues("root_finished", "keep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.tracesFinalized.WithLabelValues("inactive", "drop")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.tracesFinalized))

	expected := `
# HELP tailz_trace_spans Number of spans per finalized trace
# TYPE tailz_trace_spans histogram
tailz_trace_spans_bucket{le="1"} 1
tailz_trace_spans_bucket{le="2"} 1
tailz_trace_spans_bucket{le="4"} 2
tailz_trace_spans_bucket{le="8"} 3
tailz_trace_spans_bucket{le="16"} 3
tailz_trace_spans_bucket{le="32"} 3
tailz_trace_spans_bucket{le="64"} 3
tailz_trace_spans_bucket{le="128"} 3
tailz_trace_spans_bucket{le="256"} 3
tailz_trace_spans_bucket{le="512"} 3
tailz_trace_spans_bucket{le="1024"} 3
tailz_trace_spans_bucket{le="2048"} 3
tailz_trace_spans_bucket{le="+Inf"} 3
tailz_trace_spans_sum 9
tailz_trace_spans_count 3
`
	require.NoError(t, testutil.CollectAndCompare(r.traceSpans, strings.NewReader(expected), "tailz_trace_spans"))
}

func TestReporterSweepGauges(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	r := NewReporter(reg)

	r.SweepCompleted(2*time.Millisecond, 4, 10, 120)
	assert.Equal(t, 10.0, testutil.ToFloat64(r.bufferedTraces))
	assert.Equal(t, 120.0, testutil.ToFloat64(r.bufferedSpans))

	r.SweepCompleted(time.Millisecond, 10, 0, 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.bufferedTraces))
	assert.Equal(t, 1, testutil.CollectAndCount(r.sweepDuration))
}

func TestNewReporterRegistersEverything(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	r := NewReporter(reg)
	r.TraceFinalized(tailz.ReasonFlushed, tailz.Keep, 1)

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	assert.Panics(t, func() { NewReporter(reg) })
}
