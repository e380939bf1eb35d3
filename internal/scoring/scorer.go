// Package scoring computes the six independent signal scores for a
// (user, candidate) pair and runs them concurrently across a candidate pool.
package scoring

import (
	"context"
	"time"

	"github.com/onnwee/matchcore/internal/ranking"
	"github.com/onnwee/matchcore/internal/signal"
)

// DefaultLookback bounds how far back interaction events are read.
const DefaultLookback = 90 * 24 * time.Hour

// Pair is the input to every scorer: an immutable snapshot of the requesting
// user and one candidate for a single ranking call.
type Pair struct {
	User             signal.Profile
	Candidate        signal.Profile
	CandidatePrivacy signal.PrivacySettings
	Context          signal.Context
	EventID          string
	Now              time.Time

	// UserEmbeddings is loaded once per ranking call. UserEmbeddingsErr is set
	// when that load failed, so the embedding scorer can degrade.
	UserEmbeddings    map[signal.EmbeddingKind]signal.Embedding
	UserEmbeddingsErr error

	// UserCheckIn is the requesting user's check-in at EventID, if any.
	UserCheckIn *signal.CheckIn
}

// Scorer computes one signal for a pair.
// Score returns a value in [0, 1]. When it returns an error the caller
// substitutes Fallback and records the signal as degraded.
type Scorer interface {
	Signal() ranking.Signal
	Fallback() float64
	Score(ctx context.Context, p Pair) (float64, error)
}

// FlagScorer is implemented by scorers that also report reciprocity flags.
type FlagScorer interface {
	Scorer
	ScoreWithFlags(ctx context.Context, p Pair) (float64, ranking.ReciprocityFlags, error)
}

// Options configures the standard scorer set.
type Options struct {
	Signals         ranking.SignalTable
	GoalComplements map[string][]string
	Lookback        time.Duration
	Cache           PairScoreCache // optional interaction aggregate
}

// NewDefaultScorers builds the six standard scorers over store.
func NewDefaultScorers(store signal.Store, opts Options) []Scorer {
	if opts.Signals == nil {
		opts.Signals = ranking.DefaultSignalTable()
	}
	if opts.GoalComplements == nil {
		opts.GoalComplements = ranking.DefaultGoalComplements()
	}
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	return []Scorer{
		NewEmbeddingScorer(store),
		NewInteractionScorer(store, opts.Signals, opts.Lookback, opts.Cache),
		NewOverlapScorer(opts.GoalComplements),
		NewFreshnessScorer(),
		NewContextScorer(store),
		NewReciprocityScorer(store, opts.Lookback),
	}
}
