package ranking

import (
	"errors"
	"math"
	"testing"

	"github.com/onnwee/matchcore/internal/signal"
)

func TestDefaultContextWeights_Normalized(t *testing.T) {
	weights := DefaultContextWeights()
	if err := weights.Validate(); err != nil {
		t.Fatalf("default weights invalid: %v", err)
	}

	pulse := weights.For(signal.ContextPulse)
	if pulse.Embedding+pulse.Interaction <= pulse.Context+pulse.Freshness {
		t.Errorf("pulse weights should favor embedding and interaction: %+v", pulse)
	}

	zone := weights.For(signal.ContextZone)
	if zone.Context <= zone.Interaction || zone.Embedding <= zone.Interaction {
		t.Errorf("zone weights should favor context and embedding: %+v", zone)
	}
}

func TestWeightVector_Validate(t *testing.T) {
	tests := []struct {
		name    string
		vector  WeightVector
		wantErr error
	}{
		{
			name:   "sums to one",
			vector: WeightVector{Embedding: 0.5, Interaction: 0.5},
		},
		{
			name:   "within tolerance",
			vector: WeightVector{Embedding: 0.3333333, Interaction: 0.3333333, Overlap: 0.3333334},
		},
		{
			name:    "sums below one",
			vector:  WeightVector{Embedding: 0.5, Interaction: 0.4},
			wantErr: ErrWeightsNotNormalized,
		},
		{
			name:    "sums above one",
			vector:  WeightVector{Embedding: 0.7, Interaction: 0.4},
			wantErr: ErrWeightsNotNormalized,
		},
		{
			name:    "negative weight",
			vector:  WeightVector{Embedding: 1.2, Interaction: -0.2},
			wantErr: ErrNegativeWeight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.vector.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestWeightVector_Get(t *testing.T) {
	w := WeightVector{Embedding: 0.1, Interaction: 0.2, Overlap: 0.3, Freshness: 0.15, Context: 0.05, Reciprocity: 0.2}
	var sum float64
	for _, s := range AllSignals {
		sum += w.Get(s)
	}
	if math.Abs(sum-w.Sum()) > 1e-12 {
		t.Errorf("Get over AllSignals = %f, Sum = %f", sum, w.Sum())
	}
	if w.Get("unknown") != 0 {
		t.Error("expected unknown signal to weigh 0")
	}
}

func TestDefaultSignalTable(t *testing.T) {
	table := DefaultSignalTable()
	if err := table.Validate(); err != nil {
		t.Fatalf("default signal table invalid: %v", err)
	}

	tests := []struct {
		eventType signal.EventType
		expected  float64
	}{
		{signal.EventContactExchanged, 100},
		{signal.EventMeetingAccepted, 80},
		{signal.EventMessageReplied, 60},
		{signal.EventMessageSent, 40},
		{signal.EventFollowed, 30},
		{signal.EventSaved, 25},
		{signal.EventProfileExpanded, 10},
		{signal.EventScrolledPast, -5},
		{signal.EventSkipped, -15},
		{signal.EventUnfollowed, -25},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			w, ok := table[tt.eventType]
			if !ok {
				t.Fatalf("missing %s", tt.eventType)
			}
			if w.For(signal.ContextPulse) != tt.expected || w.For(signal.ContextZone) != tt.expected {
				t.Errorf("expected %v in both contexts, got pulse=%v zone=%v", tt.expected, w.Pulse, w.Zone)
			}
		})
	}
}

func TestSignalTable_ValidateRejectsZeroHalfLife(t *testing.T) {
	table := SignalTable{signal.EventSaved: {Pulse: 25, Zone: 25}}
	if err := table.Validate(); !errors.Is(err, ErrInvalidHalfLife) {
		t.Errorf("expected ErrInvalidHalfLife, got %v", err)
	}
}
