package ranking

import (
	"errors"
	"fmt"
	"math"

	"github.com/onnwee/matchcore/internal/signal"
)

// Signal names one of the six independently computed scoring inputs.
type Signal string

// The six signals, in fusion order.
const (
	SignalEmbedding   Signal = "embedding"
	SignalInteraction Signal = "interaction"
	SignalOverlap     Signal = "overlap"
	SignalFreshness   Signal = "freshness"
	SignalContext     Signal = "context"
	SignalReciprocity Signal = "reciprocity"
)

// AllSignals lists every signal in fusion order.
var AllSignals = []Signal{
	SignalEmbedding,
	SignalInteraction,
	SignalOverlap,
	SignalFreshness,
	SignalContext,
	SignalReciprocity,
}

// WeightTolerance is the allowed deviation of a weight vector's sum from 1.0.
const WeightTolerance = 1e-6

// ErrWeightsNotNormalized is returned when a weight vector does not sum to 1.0.
var ErrWeightsNotNormalized = errors.New("weight vector must sum to 1.0")

// ErrNegativeWeight is returned when a weight vector contains a negative weight.
var ErrNegativeWeight = errors.New("weight vector contains a negative weight")

// WeightVector holds the fusion weight of each signal for one context or variant.
type WeightVector struct {
	Embedding   float64 `json:"embedding"`
	Interaction float64 `json:"interaction"`
	Overlap     float64 `json:"overlap"`
	Freshness   float64 `json:"freshness"`
	Context     float64 `json:"context"`
	Reciprocity float64 `json:"reciprocity"`
}

// Get returns the weight of s. Unknown signals weigh 0.
func (w WeightVector) Get(s Signal) float64 {
	switch s {
	case SignalEmbedding:
		return w.Embedding
	case SignalInteraction:
		return w.Interaction
	case SignalOverlap:
		return w.Overlap
	case SignalFreshness:
		return w.Freshness
	case SignalContext:
		return w.Context
	case SignalReciprocity:
		return w.Reciprocity
	default:
		return 0
	}
}

// Sum returns the total of all six weights.
func (w WeightVector) Sum() float64 {
	return w.Embedding + w.Interaction + w.Overlap + w.Freshness + w.Context + w.Reciprocity
}

// IsZero reports whether every weight is zero.
func (w WeightVector) IsZero() bool {
	return w == WeightVector{}
}

// Validate checks that all weights are non-negative and sum to 1.0 within WeightTolerance.
func (w WeightVector) Validate() error {
	for _, s := range AllSignals {
		if w.Get(s) < 0 {
			return fmt.Errorf("%w: %s=%v", ErrNegativeWeight, s, w.Get(s))
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("%w: got %.6f", ErrWeightsNotNormalized, sum)
	}
	return nil
}

// ContextWeights holds the default weight vector for each ranking context.
type ContextWeights struct {
	Pulse WeightVector `json:"pulse"`
	Zone  WeightVector `json:"zone"`
}

// For returns the weight vector for the given context. Unknown contexts use pulse.
func (c ContextWeights) For(ctx signal.Context) WeightVector {
	if ctx == signal.ContextZone {
		return c.Zone
	}
	return c.Pulse
}

// Validate checks both context vectors.
func (c ContextWeights) Validate() error {
	if err := c.Pulse.Validate(); err != nil {
		return fmt.Errorf("pulse: %w", err)
	}
	if err := c.Zone.Validate(); err != nil {
		return fmt.Errorf("zone: %w", err)
	}
	return nil
}

// DefaultContextWeights returns the built-in control weights.
//
// Pulse favors embedding similarity and interaction history for open discovery.
// Zone favors event context and embedding similarity for in-person networking.
func DefaultContextWeights() ContextWeights {
	return ContextWeights{
		Pulse: WeightVector{
			Embedding:   0.30,
			Interaction: 0.25,
			Overlap:     0.20,
			Freshness:   0.10,
			Context:     0.05,
			Reciprocity: 0.10,
		},
		Zone: WeightVector{
			Embedding:   0.25,
			Interaction: 0.10,
			Overlap:     0.15,
			Freshness:   0.05,
			Context:     0.35,
			Reciprocity: 0.10,
		},
	}
}

// SignalWeight configures how one interaction event type contributes to the
// interaction-history signal in each context, and how fast it decays.
type SignalWeight struct {
	Pulse        float64 `json:"pulse"`
	Zone         float64 `json:"zone"`
	HalfLifeDays float64 `json:"half_life_days"`
}

// For returns the base weight for the given context.
func (w SignalWeight) For(ctx signal.Context) float64 {
	if ctx == signal.ContextZone {
		return w.Zone
	}
	return w.Pulse
}

// SignalTable maps interaction event types to their weights.
// Event types absent from the table do not contribute.
type SignalTable map[signal.EventType]SignalWeight

// DefaultSignalTable returns the built-in interaction weights.
// Positive events raise the interaction score, negative events lower it.
func DefaultSignalTable() SignalTable {
	return SignalTable{
		signal.EventContactExchanged: {Pulse: 100, Zone: 100, HalfLifeDays: 180},
		signal.EventMeetingAccepted:  {Pulse: 80, Zone: 80, HalfLifeDays: 90},
		signal.EventMessageReplied:   {Pulse: 60, Zone: 60, HalfLifeDays: 60},
		signal.EventMessageSent:      {Pulse: 40, Zone: 40, HalfLifeDays: 30},
		signal.EventFollowed:         {Pulse: 30, Zone: 30, HalfLifeDays: 90},
		signal.EventSaved:            {Pulse: 25, Zone: 25, HalfLifeDays: 60},
		signal.EventProfileExpanded:  {Pulse: 10, Zone: 10, HalfLifeDays: 14},
		signal.EventScrolledPast:     {Pulse: -5, Zone: -5, HalfLifeDays: 7},
		signal.EventSkipped:          {Pulse: -15, Zone: -15, HalfLifeDays: 30},
		signal.EventUnfollowed:       {Pulse: -25, Zone: -25, HalfLifeDays: 90},
	}
}

// clone returns an independent copy of the table.
func (t SignalTable) clone() SignalTable {
	out := make(SignalTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Validate checks that every configured half-life is positive.
func (t SignalTable) Validate() error {
	for eventType, w := range t {
		if w.HalfLifeDays <= 0 {
			return fmt.Errorf("%s: %w", eventType, ErrInvalidHalfLife)
		}
	}
	return nil
}
