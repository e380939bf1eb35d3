// Package aggregate keeps a refreshed cache of per-pair interaction scores so
// the interaction scorer can avoid reading raw event logs on every request.
package aggregate

import (
	"sort"
	"sync"
	"time"

	"github.com/onnwee/matchcore/internal/signal"
)

// DefaultMaxStaleness bounds how old a cached entry may be before lookups ignore it.
const DefaultMaxStaleness = 24 * time.Hour

// Pair identifies an ordered (actor, target) interaction history.
type Pair struct {
	ActorID  string
	TargetID string
}

// Entry is a precomputed interaction score for one pair, per context.
type Entry struct {
	ActorID    string    `cbor:"actor_id" json:"actor_id"`
	TargetID   string    `cbor:"target_id" json:"target_id"`
	Pulse      float64   `cbor:"pulse" json:"pulse"`
	Zone       float64   `cbor:"zone" json:"zone"`
	EventCount int       `cbor:"event_count" json:"event_count"`
	ComputedAt time.Time `cbor:"computed_at" json:"computed_at"`
}

// For returns the score for the given context.
func (e Entry) For(c signal.Context) float64 {
	if c == signal.ContextZone {
		return e.Zone
	}
	return e.Pulse
}

// DefaultMaxDirtyPairs caps how many pairs a DirtyTracker holds between refresh cycles.
const DefaultMaxDirtyPairs = 100_000

// DirtyTracker tracks pairs whose cached score needs recomputation.
// Thread-safe via RWMutex.
type DirtyTracker struct {
	mu       sync.RWMutex
	pairs    map[Pair]time.Time // pair -> time marked dirty
	maxPairs int
}

// NewDirtyTracker creates a DirtyTracker bounded by DefaultMaxDirtyPairs.
func NewDirtyTracker() *DirtyTracker {
	return NewDirtyTrackerWithLimit(DefaultMaxDirtyPairs)
}

// NewDirtyTrackerWithLimit creates a DirtyTracker holding at most maxPairs pairs.
// A non-positive limit means DefaultMaxDirtyPairs.
func NewDirtyTrackerWithLimit(maxPairs int) *DirtyTracker {
	if maxPairs <= 0 {
		maxPairs = DefaultMaxDirtyPairs
	}
	return &DirtyTracker{pairs: make(map[Pair]time.Time), maxPairs: maxPairs}
}

// MarkDirty marks a pair as needing recomputation. The first mark time is kept.
// It reports false when the tracker is full and the pair was not recorded;
// such pairs are scored from the event log until a later lookup marks them.
func (t *DirtyTracker) MarkDirty(p Pair) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pairs[p]; ok {
		return true
	}
	if len(t.pairs) >= t.maxPairs {
		return false
	}
	t.pairs[p] = time.Now()
	return true
}

// ClearDirty removes the dirty flag for a pair.
func (t *DirtyTracker) ClearDirty(p Pair) {
	t.mu.Lock()
	delete(t.pairs, p)
	t.mu.Unlock()
}

// DirtyPairs returns the dirty pairs, oldest mark first.
func (t *DirtyTracker) DirtyPairs() []Pair {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pairs := make([]Pair, 0, len(t.pairs))
	for p := range t.pairs {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		ti, tj := t.pairs[pairs[i]], t.pairs[pairs[j]]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		if pairs[i].ActorID != pairs[j].ActorID {
			return pairs[i].ActorID < pairs[j].ActorID
		}
		return pairs[i].TargetID < pairs[j].TargetID
	})
	return pairs
}

// IsDirty reports whether a pair is marked dirty.
func (t *DirtyTracker) IsDirty(p Pair) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.pairs[p]
	return ok
}

// DirtyCount returns the number of dirty pairs.
func (t *DirtyTracker) DirtyCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pairs)
}
