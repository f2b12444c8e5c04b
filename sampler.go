package tailz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrAlreadyStarted is returned by Start when the sweeper is already running.
	ErrAlreadyStarted = errors.New("sampler already started")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("sampler closed")
)

// Sampler buffers spans per trace, decides each trace once it is complete
// and forwards kept traces to its Dispatcher.
//
// Spans enter through Ingest (or the SpanHandler returned by Handler). A
// single sweeper goroutine periodically removes completed traces from the
// registry and passes them over a channel to a fixed set of workers, which
// run the policy and the dispatcher. A trace leaves the registry before it is
// evaluated, so no trace is ever evaluated twice.
//
//nolint:govet // Field order optimized for functionality over memory
type Sampler struct {
	cfg        Config
	registry   *Registry
	detector   Detector
	policy     Policy
	dispatcher Dispatcher
	reporter   Reporter
	logger     *zap.Logger
	clock      clockz.Clock
	finalized  *lru.Cache[TraceID, Reason]

	work    chan *TraceBuffer
	group   *errgroup.Group
	cancel  context.CancelFunc
	sweepMu sync.Mutex
	runMu   sync.Mutex
	started bool
	closed  atomic.Bool
}

// Option customizes a Sampler.
type Option func(*Sampler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sampler) { s.logger = logger }
}

// WithClock sets the clock used for activity timestamps and sweep timing.
func WithClock(clock clockz.Clock) Option {
	return func(s *Sampler) { s.clock = clock }
}

// WithReporter sets the receiver of the sampler's own metrics.
func WithReporter(reporter Reporter) Option {
	return func(s *Sampler) { s.reporter = reporter }
}

// NewSampler validates cfg and builds a sampler. The sweeper does not run
// until Start is called.
func NewSampler(cfg Config, policy Policy, dispatcher Dispatcher, opts ...Option) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, fmt.Errorf("%w: policy is required", ErrInvalidConfig)
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("%w: dispatcher is required", ErrInvalidConfig)
	}

	shards := cfg.Shards
	if shards == 0 {
		shards = DefaultShardCount()
	}

	s := &Sampler{
		cfg:        cfg,
		registry:   NewRegistry(shards),
		detector:   Detector{InactivityTimeout: cfg.InactivityTimeout},
		policy:     policy,
		dispatcher: dispatcher,
		reporter:   NopReporter{},
		logger:     zap.NewNop(),
		clock:      clockz.RealClock,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.DecisionCacheSize > 0 {
		cache, err := lru.New[TraceID, Reason](cfg.DecisionCacheSize)
		if err != nil {
			return nil, fmt.Errorf("decision cache: %w", err)
		}
		s.finalized = cache
	}

	return s, nil
}

// Handler returns a SpanHandler feeding this sampler, for Tracer.OnSpanComplete.
func (s *Sampler) Handler() SpanHandler {
	return s.Ingest
}

// Ingest buffers a finished span. It never blocks on sweeps of other traces
// and never fails: spans with zero ids are buffered as they are. A span for a
// trace that was already finalized opens a new buffer and is decided on its
// own.
func (s *Sampler) Ingest(span Span) {
	if s.closed.Load() {
		s.reporter.SpanRejected()
		return
	}

	record := span.clone()
	done := s.cfg.InferRoot && record.IsLocalRoot()
	created := s.registry.Ingest(record, s.clock.Now(), done)

	s.reporter.SpanIngested()
	if !created {
		return
	}
	s.reporter.TraceCreated()
	if s.finalized != nil {
		if reason, ok := s.finalized.Get(record.TraceID); ok {
			s.reporter.LateSpan()
			s.logger.Debug("Span arrived after its trace was finalized",
				zap.Stringer("trace_id", record.TraceID),
				zap.Stringer("previous_reason", reason))
		}
	}
}

// MarkDone signals that trace id is complete; it is decided on the next
// sweep. It reports false if no span of the trace is buffered.
func (s *Sampler) MarkDone(id TraceID) bool {
	return s.registry.MarkDone(id, s.clock.Now())
}

// BufferedTraces returns the number of traces awaiting a decision.
func (s *Sampler) BufferedTraces() int {
	return s.registry.Len()
}

// BufferedSpans returns the number of spans awaiting a decision.
func (s *Sampler) BufferedSpans() int {
	return s.registry.SpanCount()
}

// Start launches the sweeper and the workers. They stop when ctx is done or
// Close is called.
func (s *Sampler) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	// Dispatch outlives cancellation so traces already removed from the
	// registry are still delivered while shutting down.
	dispatchCtx := context.WithoutCancel(ctx)

	s.work = make(chan *TraceBuffer, s.cfg.QueueSize)
	s.group = &errgroup.Group{}

	ticker := s.clock.NewTicker(s.cfg.SweepInterval)
	s.group.Go(func() error {
		defer close(s.work)
		defer ticker.Stop()
		s.sweepLoop(ctx, ticker.C())
		return nil
	})
	for i := 0; i < s.cfg.Workers; i++ {
		s.group.Go(func() error {
			for buf := range s.work {
				s.finalize(dispatchCtx, buf)
			}
			return nil
		})
	}

	s.logger.Info("Tail sampler started",
		zap.Duration("inactivity_timeout", s.cfg.InactivityTimeout),
		zap.Duration("sweep_interval", s.cfg.SweepInterval),
		zap.Int("shards", len(s.registry.shards)),
		zap.Int("workers", s.cfg.Workers))
	return nil
}

// sweepLoop scans once per tick. Scans run on this goroutine only, so they
// never overlap; ticks missed during a slow scan or handoff are dropped by the
// ticker rather than delaying the schedule.
func (s *Sampler) sweepLoop(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
		}

		for _, buf := range s.scan() {
			// Workers drain the channel until it is closed, so this send
			// always completes and no removed trace is lost.
			s.work <- buf
		}
	}
}

// scan removes every completed trace from the registry.
func (s *Sampler) scan() []*TraceBuffer {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	started := s.clock.Now()

	var evict map[TraceID]struct{}
	if ceiling := s.cfg.MaxBufferedSpans; ceiling > 0 {
		if excess := s.registry.SpanCount() - ceiling; excess > 0 {
			evict = s.registry.oldest(excess)
		}
	}

	bufs := s.registry.ScanAndRemove(s.detector.predicate(started, evict))
	s.remember(bufs)

	s.reporter.SweepCompleted(s.clock.Since(started), len(bufs), s.registry.Len(), s.registry.SpanCount())
	if len(evict) > 0 {
		s.logger.Warn("Evicted traces to stay under the span ceiling",
			zap.Int("traces", len(evict)),
			zap.Int("max_buffered_spans", s.cfg.MaxBufferedSpans))
	}
	return bufs
}

func (s *Sampler) remember(bufs []*TraceBuffer) {
	if s.finalized == nil {
		return
	}
	for _, buf := range bufs {
		s.finalized.Add(buf.traceID, buf.reason)
	}
}

// SweepResult summarizes a synchronous sweep.
type SweepResult struct {
	Finalized int
	Kept      int
	Dropped   int
	Failed    int
}

// SweepOnce runs one sweep on the calling goroutine: completed traces are
// removed, evaluated and dispatched before it returns. It is serialized with
// the background sweeper.
func (s *Sampler) SweepOnce(ctx context.Context) SweepResult {
	return s.finalizeAll(ctx, s.scan())
}

// Flush finalizes every buffered trace regardless of completion, typically
// right before Close during a graceful shutdown.
func (s *Sampler) Flush(ctx context.Context) SweepResult {
	s.sweepMu.Lock()
	bufs := s.registry.ScanAndRemove(flushAll)
	s.remember(bufs)
	s.sweepMu.Unlock()

	if len(bufs) > 0 {
		s.logger.Info("Flushed buffered traces", zap.Int("traces", len(bufs)))
	}
	return s.finalizeAll(ctx, bufs)
}

func (s *Sampler) finalizeAll(ctx context.Context, bufs []*TraceBuffer) SweepResult {
	res := SweepResult{Finalized: len(bufs)}
	for _, buf := range bufs {
		decision, err := s.finalize(ctx, buf)
		switch {
		case decision == Drop:
			res.Dropped++
		case err != nil:
			res.Failed++
		default:
			res.Kept++
		}
	}
	return res
}

// finalize evaluates a removed trace exactly once and dispatches it if kept.
func (s *Sampler) finalize(ctx context.Context, buf *TraceBuffer) (Decision, error) {
	spans := buf.Spans()
	decision := s.policy.Evaluate(buf.Rollup(), spans)
	s.reporter.TraceFinalized(buf.reason, decision, len(spans))

	if decision == Drop {
		if ce := s.logger.Check(zap.DebugLevel, "Trace dropped"); ce != nil {
			ce.Write(zap.Stringer("trace_id", buf.traceID),
				zap.Int("spans", len(spans)),
				zap.Stringer("reason", buf.reason))
		}
		return Drop, nil
	}

	if err := s.dispatcher.Dispatch(ctx, buf.traceID, spans); err != nil {
		s.reporter.DispatchFailed(err)
		s.logger.Error("Failed to dispatch kept trace",
			zap.Stringer("trace_id", buf.traceID),
			zap.Int("spans", len(spans)),
			zap.Stringer("reason", buf.reason),
			zap.Error(err))
		return Keep, err
	}

	if ce := s.logger.Check(zap.DebugLevel, "Trace kept"); ce != nil {
		ce.Write(zap.Stringer("trace_id", buf.traceID),
			zap.Int("spans", len(spans)),
			zap.Stringer("reason", buf.reason))
	}
	return Keep, nil
}

// Close stops the sweeper, waits for the workers to deliver every trace
// already removed from the registry, and rejects further spans. Traces still
// buffered are discarded undecided; call Flush first to decide them.
func (s *Sampler) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.runMu.Lock()
	started := s.started
	cancel, group := s.cancel, s.group
	s.runMu.Unlock()

	if !started {
		return nil
	}

	cancel()
	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		s.logger.Info("Tail sampler stopped", zap.Int("undecided_traces", s.registry.Len()))
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
