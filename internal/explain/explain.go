// Package explain produces human-readable match rationale for a user pair.
package explain

import (
	"context"
	"fmt"
	"strings"

	"github.com/onnwee/matchcore/internal/signal"
)

// maxListed caps how many shared items are named in one reason.
const maxListed = 3

// Dimension identifies what a reason is based on.
type Dimension string

// Dimensions in priority order.
const (
	DimensionSkills       Dimension = "shared_skills"
	DimensionInterests    Dimension = "shared_interests"
	DimensionOrganization Dimension = "same_organization"
	DimensionFollowsYou   Dimension = "follows_you"
	DimensionGeneric      Dimension = "generic"
)

// Reason is one matched dimension.
type Reason struct {
	Dimension Dimension `json:"dimension"`
	Text      string    `json:"text"`
}

// Explanation is the payload shown next to a recommendation.
type Explanation struct {
	Summary              string   `json:"summary"`
	Reasons              []Reason `json:"reasons"`
	ConversationStarters []string `json:"conversation_starters"`
	Generic              bool     `json:"generic"`
}

// Generic returns the fallback explanation used when no dimension matches
// or when a data-derived explanation may not be shown.
func Generic() Explanation {
	return Explanation{
		Summary: "Suggested for you",
		Reasons: []Reason{{
			Dimension: DimensionGeneric,
			Text:      "You might have things in common",
		}},
		ConversationStarters: []string{"Say hi and ask what they're working on right now."},
		Generic:              true,
	}
}

// Generator builds explanations from profile data and the follow graph.
type Generator struct {
	graph signal.GraphReader
}

// NewGenerator creates a Generator.
func NewGenerator(graph signal.GraphReader) *Generator {
	return &Generator{graph: graph}
}

// Explain emits at most one reason and starter per matched dimension, in
// priority order. Fields the target disallows for scoring are not used.
func (g *Generator) Explain(ctx context.Context, user, target signal.Profile, targetPrivacy signal.PrivacySettings) (Explanation, error) {
	var e Explanation

	if targetPrivacy.AllowSkillsScoring {
		if shared := signal.Intersect(target.Skills, user.Skills); len(shared) > 0 {
			e.add(DimensionSkills,
				fmt.Sprintf("You both know %s", list(shared)),
				fmt.Sprintf("Ask how they got into %s.", shared[0]))
		}
	}
	if targetPrivacy.AllowInterestsScoring {
		if shared := signal.Intersect(target.Interests, user.Interests); len(shared) > 0 {
			e.add(DimensionInterests,
				fmt.Sprintf("You're both into %s", list(shared)),
				fmt.Sprintf("Compare notes on %s.", shared[0]))
		}
	}
	if org := strings.TrimSpace(target.Organization); org != "" && strings.EqualFold(org, strings.TrimSpace(user.Organization)) {
		e.add(DimensionOrganization,
			fmt.Sprintf("You both work at %s", org),
			fmt.Sprintf("Ask which team they're on at %s.", org))
	}

	status, err := g.graph.GetFollowStatus(ctx, target.ID, user.ID)
	if err != nil {
		return Explanation{}, fmt.Errorf("failed to get follow status: %w", err)
	}
	if status == signal.FollowAccepted {
		e.add(DimensionFollowsYou,
			"They already follow you",
			"Thank them for the follow and say what caught your eye on their profile.")
	}

	if len(e.Reasons) == 0 {
		return Generic(), nil
	}
	e.Summary = e.Reasons[0].Text
	if n := len(e.Reasons); n > 1 {
		e.Summary = fmt.Sprintf("%s, and %d more in common", e.Reasons[0].Text, n-1)
	}
	return e, nil
}

func (e *Explanation) add(d Dimension, reason, starter string) {
	e.Reasons = append(e.Reasons, Reason{Dimension: d, Text: reason})
	e.ConversationStarters = append(e.ConversationStarters, starter)
}

// list renders up to maxListed items as "a, b and c".
func list(items []string) string {
	switch n := len(items); {
	case n == 1:
		return items[0]
	case n > maxListed:
		return strings.Join(items[:maxListed], ", ") + fmt.Sprintf(" and %d more", n-maxListed)
	default:
		return strings.Join(items[:n-1], ", ") + " and " + items[n-1]
	}
}
