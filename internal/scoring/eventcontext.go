package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/onnwee/matchcore/internal/ranking"
	"github.com/onnwee/matchcore/internal/signal"
)

// ContextFallback is the score when no event is supplied or event data is unavailable.
const ContextFallback = 0.5

const (
	sameEventBonus     = 0.3
	bookmarkDivisor    = 10.0
	maxBookmarkBonus   = 0.5
	recentCheckInBonus = 0.2
	recentCheckInAge   = time.Hour
)

// ContextScorer scores shared presence at an in-person event.
type ContextScorer struct {
	store signal.EventReader
}

// NewContextScorer creates an event context scorer.
func NewContextScorer(store signal.EventReader) *ContextScorer {
	return &ContextScorer{store: store}
}

func (s *ContextScorer) Signal() ranking.Signal { return ranking.SignalContext }
func (s *ContextScorer) Fallback() float64      { return ContextFallback }

// Score sums same-event check-in (+0.3), shared session bookmarks / 10 (capped
// at 0.5) and a candidate check-in within the last hour (+0.2), capped at 1.0.
// Without an event id it returns ContextFallback.
func (s *ContextScorer) Score(ctx context.Context, p Pair) (float64, error) {
	if p.EventID == "" {
		return ContextFallback, nil
	}

	checkIn, err := s.store.GetCheckIn(ctx, p.Candidate.ID, p.EventID)
	if err != nil {
		return 0, fmt.Errorf("failed to get candidate check-in: %w", err)
	}
	shared, err := s.store.CountSharedBookmarks(ctx, p.User.ID, p.Candidate.ID, p.EventID)
	if err != nil {
		return 0, fmt.Errorf("failed to count shared bookmarks: %w", err)
	}

	var score float64
	if checkIn != nil {
		if p.UserCheckIn != nil {
			score += sameEventBonus
		}
		if age := p.Now.Sub(checkIn.CheckedInAt); age >= 0 && age <= recentCheckInAge {
			score += recentCheckInBonus
		}
	}
	score += math.Min(float64(shared)/bookmarkDivisor, maxBookmarkBonus)

	return ranking.Clamp01(score), nil
}
