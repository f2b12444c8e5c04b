package reliability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/tailz"
)

// countingDispatcher records how often each trace was delivered.
type countingDispatcher struct {
	delay time.Duration
	mu    sync.Mutex
	seen  map[tailz.TraceID]int
	spans atomic.Int64
}

func newCountingDispatcher(delay time.Duration) *countingDispatcher {
	return &countingDispatcher{delay: delay, seen: make(map[tailz.TraceID]int)}
}

func (d *countingDispatcher) Dispatch(_ context.Context, id tailz.TraceID, spans []tailz.Span) error {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.spans.Add(int64(len(spans)))
	d.mu.Lock()
	d.seen[id]++
	d.mu.Unlock()
	return nil
}

// duplicates returns the number of traces delivered more than once.
func (d *countingDispatcher) duplicates() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.seen {
		if c > 1 {
			n++
		}
	}
	return n
}

func (d *countingDispatcher) traces() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// realtimeConfig keeps timings short enough for the background sweeper to
// make progress during a test.
func realtimeConfig() tailz.Config {
	cfg := tailz.DefaultConfig()
	cfg.InactivityTimeout = 50 * time.Millisecond
	cfg.SweepInterval = 5 * time.Millisecond
	cfg.Workers = 4
	cfg.QueueSize = 8
	return cfg
}
