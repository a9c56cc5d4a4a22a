// Package dedupe tracks assessment ids already accepted, so a resubmitted
// assessment is acknowledged without being stored twice.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Default deduplication configuration constants.
const (
	defaultMaxSize = 50_000
)

// Deduper records seen assessment ids for at-most-once ingestion.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a submission that failed downstream (e.g.
	// queue backpressure) can be retried.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// entry is one insertion in FIFO order. seq tells a live entry from a
// stale one left behind by Unrecord.
type entry struct {
	id  string
	seq uint64
}

// inMemoryDeduper keeps ids in a map plus an insertion-ordered slice. When
// bounded and full, the oldest live id is evicted. Unrecord only deletes
// from the map; the matching slice entry is skipped lazily on eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64
	order   []entry
	head    int
	seq     uint64
	maxSize int // <= 0 means unbounded
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	return d
}

// SeenAndRecord atomically checks if id was seen and records it if not.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}

	d.seq++
	d.seen[id] = d.seq
	if d.maxSize > 0 {
		d.order = append(d.order, entry{id: id, seq: d.seq})
	}
	d.size.Add(1)
	return false
}

// Unrecord removes id from the seen set.
func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

// evictOldest drops the oldest live id. Must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	for d.head < len(d.order) {
		e := d.order[d.head]
		d.order[d.head] = entry{}
		d.head++
		if cur, ok := d.seen[e.id]; ok && cur == e.seq {
			delete(d.seen, e.id)
			d.size.Add(-1)
			break
		}
	}
	// Compact once the consumed prefix dominates the slice.
	if d.head > len(d.order)/2 {
		d.order = append([]entry(nil), d.order[d.head:]...)
		d.head = 0
	}
}

// Size returns the current number of ids held.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
