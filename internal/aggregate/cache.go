package aggregate

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/matchcore/internal/signal"
)

// Cache serves fresh aggregate entries to the interaction scorer.
// Misses and stale entries mark the pair dirty so the next refresh computes it.
type Cache struct {
	store        Store
	tracker      *DirtyTracker
	maxStaleness time.Duration
	logger       *slog.Logger
	metrics      *Metrics
}

// NewCache creates a Cache. tracker and metrics may be nil.
func NewCache(store Store, tracker *DirtyTracker, maxStaleness time.Duration, logger *slog.Logger, metrics *Metrics) *Cache {
	if maxStaleness <= 0 {
		maxStaleness = DefaultMaxStaleness
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:        store,
		tracker:      tracker,
		maxStaleness: maxStaleness,
		logger:       logger,
		metrics:      metrics,
	}
}

// Lookup returns the cached score for the pair if one exists and was computed
// no more than maxStaleness before now. Store errors count as a miss.
func (c *Cache) Lookup(ctx context.Context, actorID, targetID string, sc signal.Context, now time.Time) (float64, bool) {
	e, err := c.store.Get(ctx, actorID, targetID)
	if err != nil {
		c.logger.Debug("aggregate lookup failed", "actor_id", actorID, "target_id", targetID, "error", err)
	}
	if err != nil || e == nil || now.Sub(e.ComputedAt) > c.maxStaleness {
		c.miss(Pair{ActorID: actorID, TargetID: targetID})
		return 0, false
	}
	if c.metrics != nil {
		c.metrics.IncLookup("hit")
	}
	return e.For(sc), true
}

func (c *Cache) miss(p Pair) {
	if c.tracker != nil {
		c.tracker.MarkDirty(p)
	}
	if c.metrics != nil {
		c.metrics.IncLookup("miss")
	}
}
