// Package otlp converts kept traces to the OpenTelemetry pdata model and
// hands them to a collector-style consumer.
package otlp

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/zoobzio/tailz"
)

// Resource and scope defaults.
const (
	AttrServiceName  = "service.name"
	DefaultScopeName = "github.com/zoobzio/tailz"
)

// OTLP span flag bits telling whether the parent span context is remote.
const (
	flagsHasIsRemote uint32 = 0x100
	flagsIsRemote    uint32 = 0x200
)

// ErrNilConsumer is returned by NewExporter without a consumer.
var ErrNilConsumer = errors.New("otlp: nil consumer")

// Consumer receives converted traces. Its method set matches the
// collector's consumer.Traces, so a pipeline component can be used as is.
type Consumer interface {
	ConsumeTraces(ctx context.Context, td ptrace.Traces) error
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(ctx context.Context, td ptrace.Traces) error

// ConsumeTraces calls f(ctx, td).
func (f ConsumerFunc) ConsumeTraces(ctx context.Context, td ptrace.Traces) error {
	return f(ctx, td)
}

// Exporter is a tailz.Dispatcher producing one ptrace.Traces per kept trace.
type Exporter struct {
	consumer     Consumer
	resource     map[string]string
	scopeName    string
	scopeVersion string
}

var _ tailz.Dispatcher = (*Exporter)(nil)

// Option configures an Exporter.
type Option func(*Exporter)

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) Option {
	return func(e *Exporter) { e.resource[AttrServiceName] = name }
}

// WithResourceAttribute adds a string resource attribute.
func WithResourceAttribute(key, value string) Option {
	return func(e *Exporter) { e.resource[key] = value }
}

// WithScope sets the instrumentation scope of exported spans.
func WithScope(name, version string) Option {
	return func(e *Exporter) {
		e.scopeName = name
		e.scopeVersion = version
	}
}

// NewExporter creates an exporter feeding consumer.
func NewExporter(consumer Consumer, opts ...Option) (*Exporter, error) {
	if consumer == nil {
		return nil, ErrNilConsumer
	}
	e := &Exporter{
		consumer:  consumer,
		resource:  make(map[string]string),
		scopeName: DefaultScopeName,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Dispatch converts spans and passes them to the consumer.
func (e *Exporter) Dispatch(ctx context.Context, traceID tailz.TraceID, spans []tailz.Span) error {
	td := e.ToTraces(spans)
	if err := e.consumer.ConsumeTraces(ctx, td); err != nil {
		return fmt.Errorf("otlp: consume trace %s: %w", traceID, err)
	}
	return nil
}

// ToTraces builds a single resource and scope holding spans in order.
func (e *Exporter) ToTraces(spans []tailz.Span) ptrace.Traces {
	td := ptrace.NewTraces()
	rs := td.ResourceSpans().AppendEmpty()
	for k, v := range e.resource {
		rs.Resource().Attributes().PutStr(k, v)
	}

	ss := rs.ScopeSpans().AppendEmpty()
	ss.Scope().SetName(e.scopeName)
	ss.Scope().SetVersion(e.scopeVersion)

	out := ss.Spans()
	out.EnsureCapacity(len(spans))
	for i := range spans {
		populateSpan(out.AppendEmpty(), &spans[i])
	}
	return td
}

func populateSpan(dst ptrace.Span, src *tailz.Span) {
	dst.SetTraceID(pcommon.TraceID(src.TraceID))
	dst.SetSpanID(pcommon.SpanID(src.SpanID))
	if !src.IsRoot() {
		dst.SetParentSpanID(pcommon.SpanID(src.ParentSpanID))
	}
	if src.RemoteParent {
		dst.SetFlags(flagsHasIsRemote | flagsIsRemote)
	}
	dst.SetName(src.Name)
	dst.SetKind(spanKind(src.Kind))
	dst.SetStartTimestamp(pcommon.NewTimestampFromTime(src.StartTime))
	dst.SetEndTimestamp(pcommon.NewTimestampFromTime(src.EndTime))
	dst.Status().SetCode(statusCode(src.Status))
	dst.Status().SetMessage(src.StatusMessage)

	putAttributes(dst.Attributes(), src.Attributes)

	for _, ev := range src.Events {
		event := dst.Events().AppendEmpty()
		event.SetName(ev.Name)
		event.SetTimestamp(pcommon.NewTimestampFromTime(ev.Time))
		putAttributes(event.Attributes(), ev.Attributes)
	}
	for _, l := range src.Links {
		link := dst.Links().AppendEmpty()
		link.SetTraceID(pcommon.TraceID(l.TraceID))
		link.SetSpanID(pcommon.SpanID(l.SpanID))
		putAttributes(link.Attributes(), l.Attributes)
	}
}

func putAttributes(dst pcommon.Map, attrs map[string]any) {
	dst.EnsureCapacity(len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			dst.PutStr(k, val)
		case bool:
			dst.PutBool(k, val)
		case int64:
			dst.PutInt(k, val)
		case float64:
			dst.PutDouble(k, val)
		case []string:
			s := dst.PutEmptySlice(k)
			s.EnsureCapacity(len(val))
			for _, item := range val {
				s.AppendEmpty().SetStr(item)
			}
		default:
			dst.PutStr(k, fmt.Sprintf("%v", v))
		}
	}
}

func spanKind(k tailz.Kind) ptrace.SpanKind {
	switch k {
	case tailz.KindServer:
		return ptrace.SpanKindServer
	case tailz.KindClient:
		return ptrace.SpanKindClient
	case tailz.KindProducer:
		return ptrace.SpanKindProducer
	case tailz.KindConsumer:
		return ptrace.SpanKindConsumer
	default:
		return ptrace.SpanKindInternal
	}
}

func statusCode(s tailz.Status) ptrace.StatusCode {
	switch s {
	case tailz.StatusOK:
		return ptrace.StatusCodeOk
	case tailz.StatusError:
		return ptrace.StatusCodeError
	default:
		return ptrace.StatusCodeUnset
	}
}
