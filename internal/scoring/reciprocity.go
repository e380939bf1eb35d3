package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/onnwee/matchcore/internal/ranking"
	"github.com/onnwee/matchcore/internal/signal"
)

// Reciprocity flag values. They sum to 1.0.
const (
	followsYouBonus     = 0.4
	savedYouBonus       = 0.3
	viewedYouBonus      = 0.2
	pendingMeetingBonus = 0.1
	recentViewWindow    = 7 * day
)

// ReciprocityScorer scores interest the candidate has already shown in the user.
type ReciprocityScorer struct {
	store    ReciprocityReader
	lookback time.Duration
}

// ReciprocityReader is the data the reciprocity scorer needs.
type ReciprocityReader interface {
	signal.GraphReader
	signal.InteractionReader
}

// NewReciprocityScorer creates a reciprocity scorer.
func NewReciprocityScorer(store ReciprocityReader, lookback time.Duration) *ReciprocityScorer {
	return &ReciprocityScorer{store: store, lookback: lookback}
}

func (s *ReciprocityScorer) Signal() ranking.Signal { return ranking.SignalReciprocity }
func (s *ReciprocityScorer) Fallback() float64      { return 0 }

func (s *ReciprocityScorer) Score(ctx context.Context, p Pair) (float64, error) {
	score, _, err := s.ScoreWithFlags(ctx, p)
	return score, err
}

// ScoreWithFlags adds 0.4 when the candidate follows the user, 0.3 when they
// saved the user, 0.2 when they viewed the user within 7 days and 0.1 for a
// pending meeting request to the user. Activity-derived flags are skipped
// when the candidate disallows activity scoring.
func (s *ReciprocityScorer) ScoreWithFlags(ctx context.Context, p Pair) (float64, ranking.ReciprocityFlags, error) {
	var flags ranking.ReciprocityFlags

	status, err := s.store.GetFollowStatus(ctx, p.Candidate.ID, p.User.ID)
	if err != nil {
		return 0, flags, fmt.Errorf("failed to get follow status: %w", err)
	}
	flags.FollowsYou = status == signal.FollowAccepted

	if p.CandidatePrivacy.AllowActivityScoring {
		events, err := s.store.ListInteractions(ctx, p.Candidate.ID, p.User.ID, p.Now.Add(-s.lookback))
		if err != nil {
			return 0, flags, fmt.Errorf("failed to list candidate interactions: %w", err)
		}
		for _, e := range events {
			switch e.Type {
			case signal.EventSaved:
				flags.SavedYou = true
			case signal.EventProfileViewed, signal.EventProfileExpanded:
				if p.Now.Sub(e.OccurredAt) <= recentViewWindow {
					flags.ViewedYou = true
				}
			}
		}

		pending, err := s.store.HasPendingMeetingRequest(ctx, p.Candidate.ID, p.User.ID)
		if err != nil {
			return 0, flags, fmt.Errorf("failed to check meeting requests: %w", err)
		}
		flags.PendingMeeting = pending
	}

	return ranking.Clamp01(FlagScore(flags)), flags, nil
}

// FlagScore sums the bonus of each set flag.
func FlagScore(f ranking.ReciprocityFlags) float64 {
	var score float64
	if f.FollowsYou {
		score += followsYouBonus
	}
	if f.SavedYou {
		score += savedYouBonus
	}
	if f.ViewedYou {
		score += viewedYouBonus
	}
	if f.PendingMeeting {
		score += pendingMeetingBonus
	}
	return score
}
