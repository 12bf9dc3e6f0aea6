// book.go caches the most recently decoded L1/L2 snapshot per instrument.
//
// The cache lets a newly-subscribed algorithm see current market state
// immediately rather than wait for the next upstream tick — the same
// role the teacher's Book played when engine.startMarketLocked fetched
// an initial snapshot before starting the strategy goroutine, except
// here every incoming frame IS already a full snapshot, so there is
// nothing to apply incrementally: the cache just remembers the latest one.
package feed

import (
	"sync"
	"time"

	"sniper-engine/pkg/types"
)

// Book holds the latest L1/L2 snapshot seen per instrument, safe for
// concurrent use by the distributor's ingestion loops and its command loop.
type Book struct {
	mu      sync.RWMutex
	l1      map[string]types.L1Data
	l2      map[string]types.L2Data
	updated map[string]time.Time
}

// NewBook creates an empty snapshot cache.
func NewBook() *Book {
	return &Book{
		l1:      make(map[string]types.L1Data),
		l2:      make(map[string]types.L2Data),
		updated: make(map[string]time.Time),
	}
}

// SetL1 records the latest L1 snapshot for an instrument.
func (b *Book) SetL1(instrument string, data types.L1Data) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.l1[instrument] = data
	b.updated[instrument] = time.Now()
}

// SetL2 records the latest L2 snapshot for an instrument.
func (b *Book) SetL2(instrument string, data types.L2Data) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.l2[instrument] = data
	b.updated[instrument] = time.Now()
}

// L1 returns the cached L1 snapshot for an instrument, if any has arrived yet.
func (b *Book) L1(instrument string) (types.L1Data, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.l1[instrument]
	return d, ok
}

// L2 returns the cached L2 snapshot for an instrument, if any has arrived yet.
func (b *Book) L2(instrument string) (types.L2Data, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.l2[instrument]
	return d, ok
}

// IsStale reports whether the instrument has had no update within maxAge,
// or has never been updated at all.
func (b *Book) IsStale(instrument string, maxAge time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.updated[instrument]
	if !ok {
		return true
	}
	return time.Since(t) > maxAge
}
