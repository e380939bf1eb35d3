package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/onnwee/matchcore/internal/ranking"
	"github.com/onnwee/matchcore/internal/signal"
)

// EmbeddingFallback is used for any sub-component without embeddings on both sides.
const EmbeddingFallback = 0.5

// embeddingParts lists the compared kinds and their weights.
var embeddingParts = []struct {
	kind   signal.EmbeddingKind
	weight float64
}{
	{signal.EmbeddingBio, 0.40},
	{signal.EmbeddingSkills, 0.35},
	{signal.EmbeddingInterests, 0.25},
}

// EmbeddingScorer scores semantic similarity of bio, skills and interests embeddings.
type EmbeddingScorer struct {
	store signal.EmbeddingReader
}

// NewEmbeddingScorer creates an embedding similarity scorer.
func NewEmbeddingScorer(store signal.EmbeddingReader) *EmbeddingScorer {
	return &EmbeddingScorer{store: store}
}

func (s *EmbeddingScorer) Signal() ranking.Signal { return ranking.SignalEmbedding }
func (s *EmbeddingScorer) Fallback() float64      { return EmbeddingFallback }

// Score computes 0.40*bio + 0.35*skills + 0.25*interests where each part is
// 1 - cosineDistance, or EmbeddingFallback when either side lacks that vector
// or the candidate disallows scoring on that field.
func (s *EmbeddingScorer) Score(ctx context.Context, p Pair) (float64, error) {
	if p.UserEmbeddingsErr != nil {
		return 0, fmt.Errorf("user embeddings unavailable: %w", p.UserEmbeddingsErr)
	}

	candidate, err := s.store.GetEmbeddings(ctx, p.Candidate.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load candidate embeddings: %w", err)
	}

	var score float64
	for _, part := range embeddingParts {
		sub := EmbeddingFallback
		if embeddingAllowed(p.CandidatePrivacy, part.kind) {
			mine, okMine := p.UserEmbeddings[part.kind]
			theirs, okTheirs := candidate[part.kind]
			if okMine && okTheirs {
				if sim, ok := CosineSimilarity(mine.Vector, theirs.Vector); ok {
					sub = ranking.Clamp01(sim)
				}
			}
		}
		score += part.weight * sub
	}
	return ranking.Clamp01(score), nil
}

func embeddingAllowed(p signal.PrivacySettings, kind signal.EmbeddingKind) bool {
	switch kind {
	case signal.EmbeddingBio:
		return p.AllowBioScoring
	case signal.EmbeddingSkills:
		return p.AllowSkillsScoring
	case signal.EmbeddingInterests:
		return p.AllowInterestsScoring
	default:
		return true
	}
}

// CosineSimilarity returns 1 - cosineDistance of a and b.
// ok is false when the vectors differ in length, are empty, or have zero norm.
func CosineSimilarity(a, b []float32) (sim float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
