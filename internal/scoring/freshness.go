package scoring

import (
	"context"
	"time"

	"github.com/onnwee/matchcore/internal/ranking"
)

// FreshnessFallback is the score for profiles matching no recency tier.
const FreshnessFallback = 0.3

const day = 24 * time.Hour

// FreshnessScorer favors new, recently updated and online profiles.
type FreshnessScorer struct{}

// NewFreshnessScorer creates a freshness scorer.
func NewFreshnessScorer() *FreshnessScorer { return &FreshnessScorer{} }

func (s *FreshnessScorer) Signal() ranking.Signal { return ranking.SignalFreshness }
func (s *FreshnessScorer) Fallback() float64      { return FreshnessFallback }

// Score applies the first matching tier:
//
//	created < 7 days ago   -> 1.0
//	created < 30 days ago  -> 0.8
//	updated < 7 days ago   -> 0.6
//	online now             -> 0.5
//	otherwise              -> 0.3
//
// Missing timestamps skip their tier. The online flag is only used when the
// candidate allows activity scoring.
func (s *FreshnessScorer) Score(_ context.Context, p Pair) (float64, error) {
	c := p.Candidate
	created := !c.CreatedAt.IsZero()
	updated := !c.UpdatedAt.IsZero()

	switch {
	case created && p.Now.Sub(c.CreatedAt) < 7*day:
		return 1.0, nil
	case created && p.Now.Sub(c.CreatedAt) < 30*day:
		return 0.8, nil
	case updated && p.Now.Sub(c.UpdatedAt) < 7*day:
		return 0.6, nil
	case c.Online && p.CandidatePrivacy.AllowActivityScoring:
		return 0.5, nil
	default:
		return FreshnessFallback, nil
	}
}
