package tailz

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Registry maps trace ids to their buffers.
//
// The map is split into shards, each guarded by its own mutex, so ingestion
// for unrelated traces rarely contends and a sweep only ever holds one shard
// lock at a time.
type Registry struct {
	shards []*shard
	mask   uint64
	spans  atomic.Int64
	traces atomic.Int64
}

type shard struct {
	traces map[TraceID]*TraceBuffer
	mu     sync.Mutex
}

// DefaultShardCount returns the shard count used when none is configured.
func DefaultShardCount() int {
	return runtime.GOMAXPROCS(0) * 4
}

// NewRegistry creates a registry with at least n shards, rounded up to a power of two.
func NewRegistry(n int) *Registry {
	if n < 1 {
		n = 1
	}
	size := 1
	for size < n {
		size <<= 1
	}

	r := &Registry{
		shards: make([]*shard, size),
		mask:   uint64(size - 1),
	}
	for i := range r.shards {
		r.shards[i] = &shard{traces: make(map[TraceID]*TraceBuffer)}
	}
	return r
}

func (r *Registry) shardFor(id TraceID) *shard {
	return r.shards[xxhash.Sum64(id[:])&r.mask]
}

// Ingest appends span to the buffer of its trace, creating the buffer if this
// is the first span seen for the id. done marks the trace as explicitly
// finished. It reports whether a new buffer was created.
func (r *Registry) Ingest(span Span, now time.Time, done bool) bool {
	s := r.shardFor(span.TraceID)

	s.mu.Lock()
	buf, ok := s.traces[span.TraceID]
	if !ok {
		buf = newTraceBuffer(span.TraceID, now)
		s.traces[span.TraceID] = buf
	}
	buf.append(span, now, done)
	r.spans.Add(1)
	if !ok {
		r.traces.Add(1)
	}
	s.mu.Unlock()

	return !ok
}

// MarkDone flags an existing trace as explicitly finished. It reports false
// when no buffer exists for id; no buffer is created in that case.
func (r *Registry) MarkDone(id TraceID, now time.Time) bool {
	s := r.shardFor(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.traces[id]
	if !ok {
		return false
	}
	buf.markDone(now)
	return true
}

// ScanAndRemove removes and returns every buffer for which complete holds.
// complete runs under the shard lock and must not call back into the registry.
// Buffers are returned shard by shard; within the result each trace id
// appears at most once.
func (r *Registry) ScanAndRemove(complete func(*TraceBuffer) bool) []*TraceBuffer {
	var out []*TraceBuffer
	for _, s := range r.shards {
		s.mu.Lock()
		for id, buf := range s.traces {
			if complete(buf) {
				delete(s.traces, id)
				r.spans.Add(-int64(buf.Len()))
				r.traces.Add(-1)
				out = append(out, buf)
			}
		}
		s.mu.Unlock()
	}
	return out
}

// Len returns the number of buffered traces.
func (r *Registry) Len() int {
	return int(r.traces.Load())
}

// SpanCount returns the number of buffered spans across all traces.
func (r *Registry) SpanCount() int {
	return int(r.spans.Load())
}

type candidate struct {
	lastActivity time.Time
	id           TraceID
	spans        int
}

// oldest picks the least recently active traces whose span counts add up to
// at least excess.
func (r *Registry) oldest(excess int) map[TraceID]struct{} {
	if excess <= 0 {
		return nil
	}

	candidates := make([]candidate, 0, r.Len())
	for _, s := range r.shards {
		s.mu.Lock()
		for id, buf := range s.traces {
			candidates = append(candidates, candidate{id: id, lastActivity: buf.lastActivity, spans: buf.Len()})
		}
		s.mu.Unlock()
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastActivity.Before(candidates[j].lastActivity)
	})

	picked := make(map[TraceID]struct{})
	covered := 0
	for _, c := range candidates {
		if covered >= excess {
			break
		}
		picked[c.id] = struct{}{}
		covered += c.spans
	}
	return picked
}
