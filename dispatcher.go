package tailz

import (
	"context"
	"errors"
)

// Dispatcher forwards the spans of a kept trace downstream.
//
// spans are in arrival order and must not be modified; the same slice may be
// handed to several dispatchers. A returned error is reported but the trace
// is never retried or re-buffered; retries belong to the exporter behind the
// dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, traceID TraceID, spans []Span) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, traceID TraceID, spans []Span) error

// Dispatch calls f(ctx, traceID, spans).
func (f DispatcherFunc) Dispatch(ctx context.Context, traceID TraceID, spans []Span) error {
	return f(ctx, traceID, spans)
}

// MultiDispatcher sends every trace to each dispatcher in order and joins
// their errors. Every dispatcher is called even if an earlier one fails.
type MultiDispatcher []Dispatcher

// Dispatch implements Dispatcher.
func (m MultiDispatcher) Dispatch(ctx context.Context, traceID TraceID, spans []Span) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, traceID, spans); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ChainDispatcher sends every trace to each dispatcher in order and stops at
// the first error, so later dispatchers only see traces every earlier one
// accepted. Use it when a downstream stage must not run ahead of a failed one.
type ChainDispatcher []Dispatcher

// Dispatch implements Dispatcher.
func (c ChainDispatcher) Dispatch(ctx context.Context, traceID TraceID, spans []Span) error {
	for _, d := range c {
		if err := d.Dispatch(ctx, traceID, spans); err != nil {
			return err
		}
	}
	return nil
}
