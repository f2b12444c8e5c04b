package tailz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrCollectorFull is returned by Collector.Dispatch when its queue is full.
	ErrCollectorFull = errors.New("collector queue full")
	// ErrCollectorClosed is returned by Collector.Dispatch after Close.
	ErrCollectorClosed = errors.New("collector closed")
)

// Trace is a kept trace as delivered to a Collector.
type Trace struct {
	Spans   []Span
	TraceID TraceID
}

// Collector is an in-memory Dispatcher that buffers kept traces until they
// are exported. Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	traces       []Trace
	tracesCh     chan Trace
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	spanCount    int
	name         string
	mu           sync.Mutex
	sendMu       sync.RWMutex
	closed       atomic.Bool
	syncMode     atomic.Bool
}

var _ Dispatcher = (*Collector)(nil)

// NewCollector creates a new collector with the specified name and queue size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:     name,
		traces:   make([]Trace, 0, 8),
		tracesCh: make(chan Trace, bufferSize),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the collector's name.
func (c *Collector) Name() string {
	return c.name
}

// start runs the collector's main loop, receiving traces from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining traces before shutdown.
			for {
				select {
				case trace := <-c.tracesCh:
					c.buffer(trace)
				default:
					return
				}
			}
		case trace := <-c.tracesCh:
			c.buffer(trace)
		}
	}
}

// Close shuts down the collector, keeping whatever was already queued.
func (c *Collector) Close() {
	// Waits out in-flight sends so none lands after the final drain.
	c.sendMu.Lock()
	if !c.closed.CompareAndSwap(false, true) {
		c.sendMu.Unlock()
		return
	}
	close(c.stopCh)
	c.sendMu.Unlock()

	select {
	case <-c.done:
	case <-time.After(100 * time.Millisecond):
	}
}

// Dispatch queues a kept trace. The spans are copied so the collector never
// shares memory with the sampler. If the queue is full the trace is dropped,
// counted and ErrCollectorFull is returned.
func (c *Collector) Dispatch(_ context.Context, traceID TraceID, spans []Span) error {
	trace := Trace{TraceID: traceID, Spans: make([]Span, len(spans))}
	for i := range spans {
		trace.Spans[i] = spans[i].clone()
	}

	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed.Load() {
		c.droppedCount.Add(1)
		return ErrCollectorClosed
	}

	if c.syncMode.Load() {
		c.buffer(trace)
		return nil
	}

	select {
	case c.tracesCh <- trace:
		return nil
	default:
		c.droppedCount.Add(1)
		return ErrCollectorFull
	}
}

func (c *Collector) buffer(trace Trace) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.traces = append(c.traces, trace)
	c.spanCount += len(trace.Spans)
}

// Export returns all buffered traces in delivery order and clears the buffer.
func (c *Collector) Export() []Trace {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.traces) == 0 {
		return nil
	}

	result := c.traces

	// Shrink only when very oversized to avoid allocation churn.
	if cap(c.traces) > 256 && len(c.traces) < cap(c.traces)/8 {
		c.traces = make([]Trace, 0, cap(c.traces)/4)
	} else {
		c.traces = make([]Trace, 0, cap(c.traces))
	}
	c.spanCount = 0

	return result
}

// Count returns the current number of buffered traces.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.traces)
}

// SpanCount returns the current number of buffered spans across all traces.
func (c *Collector) SpanCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spanCount
}

// DroppedCount returns the total number of traces rejected by Dispatch.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
// When enabled, traces are buffered directly without using the channel.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered traces and resets the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.traces = c.traces[:0]
	c.spanCount = 0
	c.droppedCount.Store(0)
}
