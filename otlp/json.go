package otlp

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/collector/pdata/ptrace"
)

// JSONWriter is a Consumer writing each batch as one line of OTLP/JSON.
// Safe for concurrent use.
type JSONWriter struct {
	w         io.Writer
	marshaler ptrace.JSONMarshaler
	mu        sync.Mutex
}

var _ Consumer = (*JSONWriter)(nil)

// NewJSONWriter creates a JSONWriter writing to w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: w}
}

// ConsumeTraces implements Consumer.
func (j *JSONWriter) ConsumeTraces(_ context.Context, td ptrace.Traces) error {
	buf, err := j.marshaler.MarshalTraces(td)
	if err != nil {
		return fmt.Errorf("otlp: marshal traces: %w", err)
	}
	buf = append(buf, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(buf); err != nil {
		return fmt.Errorf("otlp: write traces: %w", err)
	}
	return nil
}
