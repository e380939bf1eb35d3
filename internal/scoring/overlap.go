package scoring

import (
	"context"
	"math"
	"strings"

	"github.com/onnwee/matchcore/internal/ranking"
	"github.com/onnwee/matchcore/internal/signal"
)

// Overlap point values. The sum of caps is 100.
const (
	pointsPerSkill    = 8.0
	maxSkillPoints    = 40.0
	pointsPerInterest = 6.0
	maxInterestPoints = 30.0
	goalPoints        = 30.0
)

// OverlapScorer scores shared skills, shared interests and complementary goals.
type OverlapScorer struct {
	complements map[string]signal.Set // normalized goal -> normalized complements
}

// NewOverlapScorer creates a profile overlap scorer using the given goal complement map.
func NewOverlapScorer(complements map[string][]string) *OverlapScorer {
	norm := make(map[string]signal.Set, len(complements))
	for goal, values := range complements {
		set := make(signal.Set, len(values))
		for _, v := range values {
			set[normalizeGoal(v)] = struct{}{}
		}
		norm[normalizeGoal(goal)] = set
	}
	return &OverlapScorer{complements: norm}
}

func normalizeGoal(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s *OverlapScorer) Signal() ranking.Signal { return ranking.SignalOverlap }
func (s *OverlapScorer) Fallback() float64      { return 0 }

// Score never fails: it only reads the profile snapshots.
func (s *OverlapScorer) Score(_ context.Context, p Pair) (float64, error) {
	var points float64
	if p.CandidatePrivacy.AllowSkillsScoring {
		shared := len(signal.Intersect(p.User.Skills, p.Candidate.Skills))
		points += math.Min(float64(shared)*pointsPerSkill, maxSkillPoints)
	}
	if p.CandidatePrivacy.AllowInterestsScoring {
		shared := len(signal.Intersect(p.User.Interests, p.Candidate.Interests))
		points += math.Min(float64(shared)*pointsPerInterest, maxInterestPoints)
	}
	if s.GoalsComplement(p.User.LookingFor, p.Candidate.LookingFor) {
		points += goalPoints
	}
	return ranking.Clamp01(points / 100), nil
}

// GoalsComplement reports whether any candidate goal satisfies one of the user's goals.
// A goal with no complement entry is satisfied by the same goal.
func (s *OverlapScorer) GoalsComplement(userGoals, candidateGoals []string) bool {
	if len(userGoals) == 0 || len(candidateGoals) == 0 {
		return false
	}
	theirs := make(signal.Set, len(candidateGoals))
	for _, g := range candidateGoals {
		theirs[normalizeGoal(g)] = struct{}{}
	}
	for _, g := range userGoals {
		goal := normalizeGoal(g)
		wanted, ok := s.complements[goal]
		if !ok {
			wanted = signal.NewSet(goal)
		}
		for w := range wanted {
			if theirs.Has(w) {
				return true
			}
		}
	}
	return false
}
