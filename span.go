package tailz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"
)

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "tailz"
	remoteKey bundleKeyType = "tailz.remote"
)

// Attribute keys written by ActiveSpan helpers.
const (
	AttrBusyNanos        = "busy_ns"
	AttrIdleNanos        = "idle_ns"
	AttrExceptionMessage = "exception.message"
	AttrExceptionChain   = "exception.chain"
	AttrEventLevel       = "level"
	AttrCodeFilepath     = "code.filepath"
	AttrCodeLineno       = "code.lineno"
	AttrCodeFunction     = "code.function"
)

// Status is the outcome of a span.
type Status uint8

const (
	StatusUnset Status = iota
	StatusOK
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unset"
	}
}

// Kind describes the relationship of a span to its remote peers.
type Kind uint8

const (
	KindInternal Kind = iota
	KindServer
	KindClient
	KindProducer
	KindConsumer
)

// Level is the severity of a span event.
type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Event is a timestamped annotation recorded inside a span.
type Event struct {
	Attributes map[string]any `json:"attributes,omitempty"`
	Time       time.Time      `json:"time"`
	Name       string         `json:"name"`
}

// Link points at a span of another (or the same) trace that this span
// follows from.
type Link struct {
	Attributes map[string]any `json:"attributes,omitempty"`
	TraceID    TraceID        `json:"trace_id"`
	SpanID     SpanID         `json:"span_id"`
}

// Span is the immutable record of one finished span. RemoteParent is set
// when ParentSpanID belongs to another process.
// The sampler stores its own deep copy, so a Span handed to Ingest may be
// reused by the caller afterwards.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	Attributes    map[string]any `json:"attributes,omitempty"`
	Events        []Event        `json:"events,omitempty"`
	Links         []Link         `json:"links,omitempty"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	Name          string         `json:"name"`
	StatusMessage string         `json:"status_message,omitempty"`
	TraceID       TraceID        `json:"trace_id"`
	SpanID        SpanID         `json:"span_id"`
	ParentSpanID  SpanID         `json:"parent_span_id"`
	Status        Status         `json:"status"`
	Kind          Kind           `json:"kind"`
	RemoteParent  bool           `json:"remote_parent,omitempty"`
}

// Duration is EndTime - StartTime.
func (s *Span) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// IsRoot reports whether the span has no parent.
func (s *Span) IsRoot() bool {
	return s.ParentSpanID.IsEmpty()
}

// IsLocalRoot reports whether the span is the top-level span of its trace in
// this process: it has no parent, or its parent is remote.
func (s *Span) IsLocalRoot() bool {
	return s.RemoteParent || s.IsRoot()
}

// Attribute looks up a single attribute.
func (s *Span) Attribute(key string) (any, bool) {
	if s.Attributes == nil {
		return nil, false
	}
	v, ok := s.Attributes[key]
	return v, ok
}

// clone deep-copies the span so that no map or slice is shared with the caller.
func (s *Span) clone() Span {
	c := *s
	c.Attributes = cloneAttributes(s.Attributes)
	if s.Events != nil {
		c.Events = make([]Event, len(s.Events))
		for i := range s.Events {
			c.Events[i] = s.Events[i]
			c.Events[i].Attributes = cloneAttributes(s.Events[i].Attributes)
		}
	}
	if s.Links != nil {
		c.Links = make([]Link, len(s.Links))
		for i := range s.Links {
			c.Links[i] = s.Links[i]
			c.Links[i].Attributes = cloneAttributes(s.Links[i].Attributes)
		}
	}
	return c
}

func cloneAttributes(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

// normalizeValue narrows attribute values to string, bool, int64, float64 or []string.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case string, bool, int64, float64:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint:
		return normalizeUint(uint64(val))
	case uint64:
		return normalizeUint(val)
	case float32:
		return float64(val)
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case time.Duration:
		return int64(val)
	case fmt.Stringer:
		return val.String()
	case error:
		return val.Error()
	default:
		return fmt.Sprint(val)
	}
}

// normalizeUint keeps unsigned values that do not fit an int64 in their
// decimal string form instead of wrapping them negative.
func normalizeUint(v uint64) any {
	if v > math.MaxInt64 {
		return strconv.FormatUint(v, 10)
	}
	return int64(v)
}

// ActiveSpan is a span that has been started but not finished.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type ActiveSpan struct {
	span     *Span
	tracer   *Tracer
	lastMark time.Time
	busy     time.Duration
	idle     time.Duration
	entered  int
	mu       sync.Mutex
	finished bool
}

// SetAttribute records a key-value pair on the span.
// No-op if span is already finished.
func (a *ActiveSpan) SetAttribute(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finished {
		return
	}
	if a.span.Attributes == nil {
		a.span.Attributes = make(map[string]any)
	}
	a.span.Attributes[key] = normalizeValue(value)
}

// Attribute retrieves an attribute value by key.
func (a *ActiveSpan) Attribute(key string) (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.Attribute(key)
}

// SetName replaces the span name.
func (a *ActiveSpan) SetName(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.finished {
		a.span.Name = name
	}
}

// SetKind sets the span kind.
func (a *ActiveSpan) SetKind(kind Kind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.finished {
		a.span.Kind = kind
	}
}

// SetStatus sets the span status and its description.
func (a *ActiveSpan) SetStatus(status Status, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finished {
		return
	}
	a.span.Status = status
	a.span.StatusMessage = message
}

// RecordError marks the span as failed and records the error message along
// with the messages of every wrapped cause.
func (a *ActiveSpan) RecordError(err error) {
	if err == nil {
		return
	}

	var chain []string
	for next := errors.Unwrap(err); next != nil; next = errors.Unwrap(next) {
		chain = append(chain, next.Error())
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finished {
		return
	}
	if a.span.Attributes == nil {
		a.span.Attributes = make(map[string]any)
	}
	a.span.Attributes[AttrExceptionMessage] = err.Error()
	if len(chain) > 0 {
		a.span.Attributes[AttrExceptionChain] = chain
	}
	a.span.Status = StatusError
	a.span.StatusMessage = err.Error()
}

// AddEvent appends a timestamped event. An error-level event marks the span
// as failed unless a status was already set explicitly.
func (a *ActiveSpan) AddEvent(name string, level Level, attrs map[string]any) {
	now := a.tracer.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finished {
		return
	}

	evAttrs := cloneAttributes(attrs)
	if evAttrs == nil {
		evAttrs = make(map[string]any, 1)
	}
	evAttrs[AttrEventLevel] = level.String()
	a.span.Events = append(a.span.Events, Event{Name: name, Time: now, Attributes: evAttrs})

	if level == LevelError && a.span.Status == StatusUnset {
		a.span.Status = StatusError
	}
}

// AddLink records that this span follows from another span.
func (a *ActiveSpan) AddLink(traceID TraceID, spanID SpanID) {
	a.AddLinkWithAttributes(traceID, spanID, nil)
}

// AddLinkWithAttributes is AddLink with attributes describing the link.
// Values are normalized like SetAttribute.
func (a *ActiveSpan) AddLinkWithAttributes(traceID TraceID, spanID SpanID, attrs map[string]any) {
	link := Link{TraceID: traceID, SpanID: spanID, Attributes: cloneAttributes(attrs)}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.finished {
		a.span.Links = append(a.span.Links, link)
	}
}

// Enter marks the start of a busy period. Calls may nest.
func (a *ActiveSpan) Enter() {
	if !a.tracer.trackInactivity {
		return
	}
	now := a.tracer.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finished {
		return
	}
	if a.entered == 0 {
		a.idle += now.Sub(a.lastMark)
		a.lastMark = now
	}
	a.entered++
}

// Exit marks the end of a busy period.
func (a *ActiveSpan) Exit() {
	if !a.tracer.trackInactivity {
		return
	}
	now := a.tracer.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finished || a.entered == 0 {
		return
	}
	a.entered--
	if a.entered == 0 {
		a.busy += now.Sub(a.lastMark)
		a.lastMark = now
	}
}

// Finish completes the span and sends it to the tracer's handlers.
// Safe to call multiple times - subsequent calls are no-ops.
func (a *ActiveSpan) Finish() {
	now := a.tracer.clock.Now()

	a.mu.Lock()
	if a.finished {
		a.mu.Unlock()
		return
	}
	a.finished = true
	a.span.EndTime = now

	if a.tracer.trackInactivity {
		if a.entered > 0 {
			a.busy += now.Sub(a.lastMark)
		} else {
			a.idle += now.Sub(a.lastMark)
		}
		if a.span.Attributes == nil {
			a.span.Attributes = make(map[string]any, 2)
		}
		a.span.Attributes[AttrBusyNanos] = a.busy.Nanoseconds()
		a.span.Attributes[AttrIdleNanos] = a.idle.Nanoseconds()
	}

	record := a.span.clone()
	a.mu.Unlock()

	a.tracer.executeHandlers(record)
}

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() TraceID {
	return a.span.TraceID
}

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() SpanID {
	return a.span.SpanID
}

// Context creates a new context with this span embedded.
// The returned context can be used to start child spans.
func (a *ActiveSpan) Context(parent context.Context) context.Context {
	bundle := &contextBundle{tracer: a.tracer, span: a}
	return context.WithValue(parent, bundleKey, bundle)
}

type remoteParent struct {
	traceID TraceID
	spanID  SpanID
}

// ContextWithRemoteParent returns a context whose next span joins the trace
// of an upstream process, as a child of spanID. A local span already in ctx
// takes precedence. Empty ids leave ctx unchanged.
func ContextWithRemoteParent(ctx context.Context, traceID TraceID, spanID SpanID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if traceID.IsEmpty() || spanID.IsEmpty() {
		return ctx
	}
	return context.WithValue(ctx, remoteKey, remoteParent{traceID: traceID, spanID: spanID})
}

func remoteParentFromContext(ctx context.Context) (remoteParent, bool) {
	p, ok := ctx.Value(remoteKey).(remoteParent)
	return p, ok
}

// SpanFromContext extracts the current span from a context.
// Returns nil if no span is present.
func SpanFromContext(ctx context.Context) *ActiveSpan {
	if ctx == nil {
		return nil
	}

	if bundle, ok := ctx.Value(bundleKey).(*contextBundle); ok {
		return bundle.span
	}

	return nil
}
