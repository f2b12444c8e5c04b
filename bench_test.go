package tailz

import (
	"context"
	"testing"
	"time"
)

func BenchmarkSpanToSampler(b *testing.B) {
	ctx := context.Background()

	b.Run("no-handlers", func(b *testing.B) {
		tracer := New()
		defer tracer.Close()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, span := tracer.StartSpan(ctx, "test-op")
			span.SetAttribute("key", "value")
			span.SetAttribute("int", 123)
			span.Finish()
		}
	})

	b.Run("sampler", func(b *testing.B) {
		cfg := DefaultConfig()
		cfg.InactivityTimeout = time.Hour
		s, err := NewSampler(cfg, AlwaysDrop(), DispatcherFunc(func(context.Context, TraceID, []Span) error { return nil }))
		if err != nil {
			b.Fatal(err)
		}
		tracer := New()
		defer tracer.Close()
		tracer.OnSpanComplete(s.Handler())

		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, span := tracer.StartSpan(ctx, "test-op")
			span.SetAttribute("key", "value")
			span.Finish()
			if i%1024 == 0 {
				s.Flush(ctx)
			}
		}
	})
}

func TestTracerWithoutHandlers(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	// With no handlers, spans still carry ids and finish quietly.
	_, span := tracer.StartSpan(context.Background(), "test-op")
	span.SetAttribute("key", "value")
	span.Finish()

	if span.TraceID().IsEmpty() || span.SpanID().IsEmpty() {
		t.Error("Expected ids even without handlers")
	}

	var captured Span
	tracer.OnSpanComplete(func(s Span) { captured = s })

	_, span = tracer.StartSpan(context.Background(), "real-op")
	span.SetAttribute("key", "value")
	span.Finish()

	if captured.Name != "real-op" {
		t.Error("Handler should have received the span")
	}
	if captured.Attributes["key"] != "value" {
		t.Error("Span should have the attribute set")
	}
}
