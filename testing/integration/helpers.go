package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap/zaptest"

	"github.com/zoobzio/tailz"
)

// Pipeline wires a tracer through a sampler into a synchronous collector.
//
//nolint:govet // Field alignment optimized for test helper readability
type Pipeline struct {
	Tracer    *tailz.Tracer
	Sampler   *tailz.Sampler
	Collector *tailz.Collector
	Clock     *clockz.FakeClock
	Config    tailz.Config
}

// NewPipeline builds a pipeline on a fake clock. The sampler is not started;
// tests drive it with Sweep.
func NewPipeline(t *testing.T, cfg tailz.Config, policy tailz.Policy) *Pipeline {
	t.Helper()
	return NewPipelineWith(t, cfg, func(clockz.Clock) tailz.Policy { return policy })
}

// NewPipelineWith is NewPipeline for policies that need the pipeline clock,
// such as rate limiters.
func NewPipelineWith(t *testing.T, cfg tailz.Config, build func(clockz.Clock) tailz.Policy) *Pipeline {
	t.Helper()

	clock := clockz.NewFakeClock()
	policy := build(clock)
	collector := tailz.NewCollector(t.Name(), 1024)
	collector.SetSyncMode(true) // Enable synchronous collection for testing.

	sampler, err := tailz.NewSampler(cfg, policy, collector,
		tailz.WithClock(clock),
		tailz.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	tracer := tailz.New().WithClock(clock)
	tracer.OnSpanComplete(sampler.Handler())

	p := &Pipeline{Tracer: tracer, Sampler: sampler, Collector: collector, Clock: clock, Config: cfg}
	t.Cleanup(func() {
		tracer.Close()
		_ = sampler.Close(context.Background())
		collector.Close()
	})
	return p
}

// TestConfig returns sampler settings with short, test-friendly timings.
func TestConfig() tailz.Config {
	cfg := tailz.DefaultConfig()
	cfg.InactivityTimeout = 2 * time.Second
	cfg.SweepInterval = 500 * time.Millisecond
	cfg.Shards = 8
	cfg.Workers = 2
	return cfg
}

// Sweep advances the clock by d and runs one synchronous sweep.
func (p *Pipeline) Sweep(d time.Duration) tailz.SweepResult {
	p.Clock.Advance(d)
	return p.Sampler.SweepOnce(context.Background())
}

// Kept returns the kept traces collected so far, keyed by id.
func (p *Pipeline) Kept() map[tailz.TraceID][]tailz.Span {
	out := make(map[tailz.TraceID][]tailz.Span)
	for _, tr := range p.Collector.Export() {
		out[tr.TraceID] = append(out[tr.TraceID], tr.Spans...)
	}
	return out
}

// AssertParentChild verifies the parent-child relationship inside one trace.
func AssertParentChild(t *testing.T, spans []tailz.Span, parentName, childName string) {
	t.Helper()
	var parent, child *tailz.Span
	for i := range spans {
		switch spans[i].Name {
		case parentName:
			parent = &spans[i]
		case childName:
			child = &spans[i]
		}
	}
	require.NotNil(t, parent, "parent span %q not found", parentName)
	require.NotNil(t, child, "child span %q not found", childName)
	require.Equal(t, parent.SpanID, child.ParentSpanID, "%s is not the parent of %s", parentName, childName)
	require.Equal(t, parent.TraceID, child.TraceID)
}

// SpanTree represents a hierarchical view of spans.
type SpanTree struct {
	Span     tailz.Span
	Children []*SpanTree
}

// BuildSpanTree constructs a tree from a flat span list.
func BuildSpanTree(spans []tailz.Span) []*SpanTree {
	nodes := make(map[tailz.SpanID]*SpanTree, len(spans))
	for i := range spans {
		nodes[spans[i].SpanID] = &SpanTree{Span: spans[i]}
	}

	var roots []*SpanTree
	for i := range spans {
		node := nodes[spans[i].SpanID]
		if spans[i].IsLocalRoot() {
			roots = append(roots, node)
		} else if parent, ok := nodes[spans[i].ParentSpanID]; ok {
			parent.Children = append(parent.Children, node)
		}
	}
	return roots
}

// PrintSpanTree formats a span tree for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	fmt.Fprintf(sb, "%s%s (%.2fms)\n",
		strings.Repeat("  ", depth), node.Span.Name, node.Span.Duration().Seconds()*1000)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}
