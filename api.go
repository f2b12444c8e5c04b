// Package tailz provides tail-based trace sampling for a single process.
//
// Spans are buffered per trace until the trace is complete, then a policy
// sees the whole trace and decides whether it is kept. Kept traces go to a
// Dispatcher; dropped traces are discarded.
//
// Core Components:
//   - Tracer: Starts spans and hands finished spans to handlers.
//   - Sampler: Buffers spans, detects completion and runs the policy.
//   - Policy: Decides keep or drop from the full trace.
//   - Dispatcher: Receives kept traces. Collector is an in-memory one.
//
// Basic Usage:
//
//	policy, err := tailz.BuildPolicy(tailz.PolicyConfig{
//		Type: tailz.PolicyOr,
//		Policies: []tailz.PolicyConfig{
//			{Type: tailz.PolicyError},
//			{Type: tailz.PolicyDuration, Threshold: 500 * time.Millisecond},
//		},
//	})
//
//	sampler, err := tailz.NewSampler(tailz.DefaultConfig(), policy, exporter)
//	sampler.Start(ctx)
//	defer sampler.Close(ctx)
//
//	tracer := tailz.New()
//	tracer.OnSpanComplete(sampler.Handler())
//
//	ctx, span := tracer.StartSpan(ctx, "checkout")
//	defer span.Finish()
//
// Completion:
//
// A trace is complete when its root span finishes (or MarkDone is called), or
// when no span arrived for InactivityTimeout. The sweeper checks every
// SweepInterval, so a trace is decided at most InactivityTimeout +
// SweepInterval after its last span.
//
// Each trace is decided exactly once. Spans arriving after their trace was
// decided start a new trace with the same id.
//
// Resource Cleanup:
//
// Call Sampler.Flush to decide every buffered trace, then Sampler.Close to
// stop the sweeper. Call Tracer.Close to stop its background goroutines.
package tailz
