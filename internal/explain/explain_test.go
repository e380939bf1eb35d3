package explain

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/onnwee/matchcore/internal/signal"
)

func dimensions(e Explanation) []Dimension {
	out := make([]Dimension, len(e.Reasons))
	for i, r := range e.Reasons {
		out[i] = r.Dimension
	}
	return out
}

func TestExplain(t *testing.T) {
	store := signal.NewInMemoryStore()
	store.Follow("b", "a", signal.FollowAccepted)
	g := NewGenerator(store)

	user := signal.Profile{ID: "a", Skills: []string{"Go", "Postgres"}, Interests: []string{"climbing"}, Organization: "Acme"}

	tests := []struct {
		name     string
		target   signal.Profile
		privacy  func(*signal.PrivacySettings)
		expected []Dimension
	}{
		{
			name:     "every dimension in priority order",
			target:   signal.Profile{ID: "b", Skills: []string{"go"}, Interests: []string{"Climbing"}, Organization: " acme "},
			expected: []Dimension{DimensionSkills, DimensionInterests, DimensionOrganization, DimensionFollowsYou},
		},
		{
			name:     "interests only",
			target:   signal.Profile{ID: "c", Interests: []string{"climbing"}},
			expected: []Dimension{DimensionInterests},
		},
		{
			name:     "skills hidden by privacy",
			target:   signal.Profile{ID: "c", Skills: []string{"Go"}},
			privacy:  func(p *signal.PrivacySettings) { p.AllowSkillsScoring = false },
			expected: []Dimension{DimensionGeneric},
		},
		{
			name:     "nothing in common",
			target:   signal.Profile{ID: "c", Skills: []string{"Rust"}},
			expected: []Dimension{DimensionGeneric},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			privacy := signal.DefaultPrivacySettings(tt.target.ID)
			if tt.privacy != nil {
				tt.privacy(&privacy)
			}
			got, err := g.Explain(context.Background(), user, tt.target, privacy)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(dimensions(got), tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, dimensions(got))
			}
			if len(got.ConversationStarters) != len(got.Reasons) {
				t.Errorf("expected one starter per reason, got %d for %d", len(got.ConversationStarters), len(got.Reasons))
			}
			if got.Summary == "" {
				t.Error("expected a summary")
			}
		})
	}
}

type brokenGraph struct{ signal.GraphReader }

func (brokenGraph) GetFollowStatus(context.Context, string, string) (signal.FollowStatus, error) {
	return signal.FollowNone, errors.New("timeout")
}

func TestExplain_GraphError(t *testing.T) {
	g := NewGenerator(brokenGraph{})
	if _, err := g.Explain(context.Background(), signal.Profile{ID: "a"}, signal.Profile{ID: "b"}, signal.DefaultPrivacySettings("b")); err == nil {
		t.Error("expected error")
	}
}

func TestList(t *testing.T) {
	tests := []struct {
		items    []string
		expected string
	}{
		{[]string{"Go"}, "Go"},
		{[]string{"Go", "SQL"}, "Go and SQL"},
		{[]string{"Go", "SQL", "Kafka"}, "Go, SQL and Kafka"},
		{[]string{"Go", "SQL", "Kafka", "Redis", "gRPC"}, "Go, SQL, Kafka and 2 more"},
	}
	for _, tt := range tests {
		if got := list(tt.items); got != tt.expected {
			t.Errorf("list(%v): expected %q, got %q", tt.items, tt.expected, got)
		}
	}
}

func TestGeneric(t *testing.T) {
	e := Generic()
	if !e.Generic || len(e.Reasons) != 1 || len(e.ConversationStarters) != 1 {
		t.Errorf("unexpected generic explanation: %+v", e)
	}
}
