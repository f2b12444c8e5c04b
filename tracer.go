package tailz

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
	"golang.org/x/sync/errgroup"
)

// contextBundle holds both tracer and span to reduce context allocations.
type contextBundle struct {
	tracer *Tracer
	span   *ActiveSpan
}

// SpanHandler is called when a span completes.
// The span is a private copy owned by the handler.
type SpanHandler func(span Span)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Tracer starts spans and hands each finished span to the registered handlers.
// A Sampler registers itself as a handler to buffer spans per trace.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers        []handlerEntry
	panicHook       func(handlerID uint64, r interface{})
	async           errgroup.Group
	clock           clockz.Clock
	handlersLock    sync.RWMutex
	nextID          atomic.Uint64
	droppedSpans    atomic.Uint64
	asyncUsed       atomic.Bool
	asyncLimited    atomic.Bool
	trackInactivity bool
	callerInfo      bool
}

// New creates a new tracer.
// Uses the real clock for production behavior.
func New() *Tracer {
	return &Tracer{
		handlers:        make([]handlerEntry, 0),
		clock:           clockz.RealClock,
		trackInactivity: true,
	}
}

// WithClock sets the clock used for span timestamps.
// Enables clock injection for deterministic testing.
func (t *Tracer) WithClock(clock clockz.Clock) *Tracer {
	t.clock = clock
	return t
}

// WithInactivityTracking toggles the busy_ns/idle_ns attributes recorded from
// Enter/Exit calls.
func (t *Tracer) WithInactivityTracking(enabled bool) *Tracer {
	t.trackInactivity = enabled
	return t
}

// WithCallerInfo toggles code.* attributes describing where each span started.
func (t *Tracer) WithCallerInfo(enabled bool) *Tracer {
	t.callerInfo = enabled
	return t
}

// OnSpanComplete registers a synchronous handler called when spans complete.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSpanCompleteAsync registers a handler that runs on its own goroutine.
// Close waits for async handlers still running. See LimitAsyncHandlers.
func (t *Tracer) OnSpanCompleteAsync(handler SpanHandler) uint64 {
	return t.registerHandler(handler, true)
}

func (t *Tracer) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.panicHook = hook
}

// StartSpan creates a new span and returns it wrapped in an ActiveSpan.
// If the context contains an existing span, the new span will be its child.
// Otherwise a remote parent set by ContextWithRemoteParent is joined, and
// failing both the span starts a new trace.
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, *ActiveSpan) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := t.clock.Now()
	span := &Span{
		SpanID:    NewSpanID(),
		Name:      name,
		StartTime: now,
	}

	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.span.TraceID
		span.ParentSpanID = parent.span.SpanID
	} else if remote, ok := remoteParentFromContext(ctx); ok {
		span.TraceID = remote.traceID
		span.ParentSpanID = remote.spanID
		span.RemoteParent = true
	} else {
		span.TraceID = NewTraceID()
	}

	if t.callerInfo {
		if pc, file, line, ok := runtime.Caller(1); ok {
			span.Attributes = map[string]any{
				AttrCodeFilepath: file,
				AttrCodeLineno:   int64(line),
			}
			if fn := runtime.FuncForPC(pc); fn != nil {
				span.Attributes[AttrCodeFunction] = fn.Name()
			}
		}
	}

	activeSpan := &ActiveSpan{
		span:     span,
		tracer:   t,
		lastMark: now,
	}

	bundle := &contextBundle{tracer: t, span: activeSpan}
	newCtx := context.WithValue(ctx, bundleKey, bundle)

	return newCtx, activeSpan
}

// executeHandlers calls all registered handlers with the completed span.
// Every handler receives its own copy; the last one gets the original.
func (t *Tracer) executeHandlers(span Span) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	t.handlersLock.RUnlock()

	for i, h := range handlers {
		record := span
		if i < len(handlers)-1 {
			record = span.clone()
		}
		if !h.async {
			t.safeCall(h, record)
			continue
		}
		t.asyncUsed.Store(true)
		entry := h
		call := func() error {
			t.safeCall(entry, record)
			return nil
		}
		if !t.asyncLimited.Load() {
			t.async.Go(call)
		} else if !t.async.TryGo(call) {
			t.droppedSpans.Add(1)
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, span Span) {
	defer func() {
		if r := recover(); r != nil {
			if t.panicHook != nil {
				t.panicHook(entry.id, r)
			}
		}
	}()
	entry.handler(span)
}

// LimitAsyncHandlers caps the number of async handler calls in flight.
// A span finishing while the cap is reached skips the async handlers and is
// counted by DroppedSpans, so Finish never blocks. It must be called before
// the first span reaches an async handler.
func (t *Tracer) LimitAsyncHandlers(n int) error {
	if n <= 0 {
		return errors.New("async handler limit must be > 0")
	}
	if t.asyncUsed.Load() {
		return errors.New("async handlers already running")
	}
	if !t.asyncLimited.CompareAndSwap(false, true) {
		return errors.New("async handler limit already set")
	}
	t.async.SetLimit(n)
	return nil
}

// DroppedSpans returns the number of async handler calls skipped because the
// limit set by LimitAsyncHandlers was reached.
func (t *Tracer) DroppedSpans() uint64 {
	return t.droppedSpans.Load()
}

// Close removes every handler and waits for async handler calls still running.
func (t *Tracer) Close() {
	t.handlersLock.Lock()
	t.handlers = nil
	t.handlersLock.Unlock()

	_ = t.async.Wait()
}
