package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/onnwee/matchcore/internal/ranking"
	"github.com/onnwee/matchcore/internal/signal"
)

// InteractionFallback is used when the interaction log cannot be read.
const InteractionFallback = 0.0

// interactionScale converts summed weighted events into [0, 1].
const interactionScale = 100.0

// PairScoreCache serves precomputed interaction scores.
// Lookup reports ok=false when no entry exists or the entry is too stale to use.
type PairScoreCache interface {
	Lookup(ctx context.Context, actorID, targetID string, c signal.Context, now time.Time) (score float64, ok bool)
}

// InteractionScorer scores the decayed history of the user's actions toward the candidate.
type InteractionScorer struct {
	store    signal.InteractionReader
	table    ranking.SignalTable
	lookback time.Duration
	cache    PairScoreCache
}

// NewInteractionScorer creates an interaction history scorer. cache may be nil.
func NewInteractionScorer(store signal.InteractionReader, table ranking.SignalTable, lookback time.Duration, cache PairScoreCache) *InteractionScorer {
	return &InteractionScorer{store: store, table: table, lookback: lookback, cache: cache}
}

func (s *InteractionScorer) Signal() ranking.Signal { return ranking.SignalInteraction }
func (s *InteractionScorer) Fallback() float64      { return InteractionFallback }

// Score returns the cached aggregate when fresh, otherwise computes from the event log.
func (s *InteractionScorer) Score(ctx context.Context, p Pair) (float64, error) {
	if s.cache != nil {
		if score, ok := s.cache.Lookup(ctx, p.User.ID, p.Candidate.ID, p.Context, p.Now); ok {
			return score, nil
		}
	}

	events, err := s.store.ListInteractions(ctx, p.User.ID, p.Candidate.ID, p.Now.Add(-s.lookback))
	if err != nil {
		return 0, fmt.Errorf("failed to list interactions: %w", err)
	}
	return InteractionScore(events, s.table, p.Context, p.Now), nil
}

// InteractionScore sums baseWeight(type, context) * decay(age, halfLife(type))
// over events, divides by 100 and clamps to [0, 1].
// Event types missing from table are ignored.
func InteractionScore(events []signal.InteractionEvent, table ranking.SignalTable, c signal.Context, now time.Time) float64 {
	var total float64
	for _, e := range events {
		w, ok := table[e.Type]
		if !ok {
			continue
		}
		decay, err := ranking.Decay(e.OccurredAt, w.HalfLifeDays, now)
		if err != nil {
			continue
		}
		total += w.For(c) * decay
	}
	return ranking.Clamp01(total / interactionScale)
}
