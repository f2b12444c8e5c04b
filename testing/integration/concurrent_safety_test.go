package integration

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/tailz"
)

// TestConcurrentIngestAndSweep races span producers against a sweeper and
// checks that every span is delivered exactly once.
func TestConcurrentIngestAndSweep(t *testing.T) {
	cfg := TestConfig()
	cfg.QueueSize = 64
	p := NewPipeline(t, cfg, tailz.AlwaysKeep())

	numGoroutines := 20
	tracesPerGoroutine := 50

	stop := make(chan struct{})
	var sweeps atomic.Int64
	var sweeper sync.WaitGroup
	sweeper.Add(1)
	go func() {
		defer sweeper.Done()
		for {
			select {
			case <-stop:
				return
			default:
				p.Sampler.SweepOnce(context.Background())
				sweeps.Add(1)
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(routine int) {
			defer wg.Done()
			for j := 0; j < tracesPerGoroutine; j++ {
				ctx, parent := p.Tracer.StartSpan(context.Background(), "parent")
				_, child := p.Tracer.StartSpan(ctx, "child")
				parent.SetAttribute("routine", routine)
				child.SetAttribute("iteration", j)
				child.Finish()
				parent.Finish()
			}
		}(i)
	}
	wg.Wait()
	close(stop)
	sweeper.Wait()

	p.Sampler.Flush(context.Background())
	require.Zero(t, p.Sampler.BufferedTraces())
	require.Zero(t, p.Sampler.BufferedSpans())

	kept := p.Kept()
	assert.Len(t, kept, numGoroutines*tracesPerGoroutine)
	for id, spans := range kept {
		if assert.Len(t, spans, 2, "trace %s split or duplicated", id) {
			AssertParentChild(t, spans, "parent", "child")
		}
	}
	t.Logf("%d sweeps raced %d producers", sweeps.Load(), numGoroutines)
}

// TestConcurrentMarkDone closes traces from other goroutines while their
// spans are still arriving.
func TestConcurrentMarkDone(t *testing.T) {
	cfg := TestConfig()
	cfg.InferRoot = false
	p := NewPipeline(t, cfg, tailz.AlwaysKeep())

	ids := make([]tailz.TraceID, 100)
	var wg sync.WaitGroup
	for i := range ids {
		ctx, root := p.Tracer.StartSpan(context.Background(), "request")
		ids[i] = root.TraceID()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 5; k++ {
				_, s := p.Tracer.StartSpan(ctx, "step")
				s.Finish()
			}
			root.Finish()
		}()
	}
	wg.Wait()

	for _, id := range ids {
		wg.Add(1)
		go func(id tailz.TraceID) {
			defer wg.Done()
			assert.True(t, p.Sampler.MarkDone(id))
		}(id)
	}
	wg.Wait()

	res := p.Sampler.SweepOnce(context.Background())
	assert.Equal(t, len(ids), res.Finalized)
	for id, spans := range p.Kept() {
		assert.Len(t, spans, 6, "trace %s", id)
	}
}
