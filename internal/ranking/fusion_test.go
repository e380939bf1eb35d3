package ranking

import (
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"testing"
)

func TestFuse(t *testing.T) {
	weights := DefaultContextWeights().Pulse

	tests := []struct {
		name       string
		components Components
		expected   float64
	}{
		{name: "all zero", components: Components{}, expected: 0},
		{
			name:       "all one",
			components: Components{1, 1, 1, 1, 1, 1},
			expected:   1,
		},
		{
			name:       "embedding fallback only",
			components: Components{Embedding: 0.5},
			expected:   weights.Embedding * 0.5,
		},
		{
			name:       "mixed",
			components: Components{Embedding: 0.8, Interaction: 0.4, Overlap: 0.5, Freshness: 1, Context: 0.5, Reciprocity: 0.4},
			expected:   0.30*0.8 + 0.25*0.4 + 0.20*0.5 + 0.10*1 + 0.05*0.5 + 0.10*0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fuse(tt.components, weights)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.expected, got)
			}
		})
	}
}

func TestComponents_SetClamps(t *testing.T) {
	var c Components
	c.Set(SignalInteraction, -0.4)
	c.Set(SignalReciprocity, 1.7)
	c.Set(SignalOverlap, math.NaN())
	if c.Interaction != 0 || c.Reciprocity != 1 || c.Overlap != 0 {
		t.Errorf("expected clamped components, got %+v", c)
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name       string
		components Components
		expected   Category
	}{
		{name: "overlap wins over everything", components: Components{Overlap: 0.61, Reciprocity: 0.9, Embedding: 0.9, Context: 0.9}, expected: CategoryProfessional},
		{name: "reciprocity", components: Components{Overlap: 0.6, Reciprocity: 0.51, Embedding: 0.9}, expected: CategoryMutualInterest},
		{name: "embedding", components: Components{Reciprocity: 0.5, Embedding: 0.71, Context: 1}, expected: CategorySimilarBackground},
		{name: "context", components: Components{Embedding: 0.7, Context: 0.51}, expected: CategoryEventConnection},
		{name: "thresholds are exclusive", components: Components{Overlap: 0.6, Reciprocity: 0.5, Embedding: 0.7, Context: 0.5}, expected: CategoryDiscovery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.components); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestRank_OrderAndTieBreak(t *testing.T) {
	results := []Result{
		{CandidateID: "c", Score: 0.5},
		{CandidateID: "a", Score: 0.5},
		{CandidateID: "d", Score: 0.9},
		{CandidateID: "b", Score: 0.5},
		{CandidateID: "e", Score: 0.1},
	}

	got := Rank(results, Page{Limit: 10}, DefaultLargePoolThreshold)
	want := []string{"d", "a", "b", "c", "e"}
	if ids := candidateIDs(got); !reflect.DeepEqual(ids, want) {
		t.Errorf("expected %v, got %v", want, ids)
	}
}

func TestRank_Pagination(t *testing.T) {
	tests := []struct {
		name     string
		page     Page
		expected []string
	}{
		{name: "first page", page: Page{Limit: 2}, expected: []string{"d", "a"}},
		{name: "second page", page: Page{Limit: 2, Offset: 2}, expected: []string{"b", "c"}},
		{name: "last partial page", page: Page{Limit: 2, Offset: 4}, expected: []string{"e"}},
		{name: "offset past end", page: Page{Limit: 2, Offset: 10}, expected: []string{}},
		{name: "zero limit", page: Page{Limit: 0}, expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := []Result{
				{CandidateID: "c", Score: 0.5},
				{CandidateID: "a", Score: 0.5},
				{CandidateID: "d", Score: 0.9},
				{CandidateID: "b", Score: 0.5},
				{CandidateID: "e", Score: 0.1},
			}
			got := candidateIDs(Rank(results, tt.page, DefaultLargePoolThreshold))
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

// TestRank_PartialSortMatchesFullSort verifies the heap path returns the same page as a full sort.
func TestRank_PartialSortMatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pool := make([]Result, 2000)
	for i := range pool {
		// coarse scores force many ties
		pool[i] = Result{CandidateID: fmt.Sprintf("user-%04d", rng.Intn(100000)), Score: float64(rng.Intn(20)) / 20}
	}

	for _, page := range []Page{{Limit: 20}, {Limit: 50, Offset: 100}, {Limit: 1, Offset: 1999}} {
		full := Rank(append([]Result(nil), pool...), page, 0)
		partial := Rank(append([]Result(nil), pool...), page, 10)
		if !reflect.DeepEqual(candidateIDs(full), candidateIDs(partial)) {
			t.Errorf("page %+v: partial sort diverged from full sort", page)
		}
	}
}

func TestRank_Deterministic(t *testing.T) {
	build := func() []Result {
		return []Result{
			{CandidateID: "x", Score: 0.3},
			{CandidateID: "y", Score: 0.3},
			{CandidateID: "z", Score: 0.7},
		}
	}
	first := Rank(build(), Page{Limit: 3}, DefaultLargePoolThreshold)
	second := Rank(build(), Page{Limit: 3}, DefaultLargePoolThreshold)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical output, got %v and %v", first, second)
	}
}

func candidateIDs(results []Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.CandidateID
	}
	return ids
}

func BenchmarkRank_LargePool(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	pool := make([]Result, 20000)
	for i := range pool {
		pool[i] = Result{CandidateID: fmt.Sprintf("user-%05d", i), Score: rng.Float64()}
	}
	scratch := make([]Result, len(pool))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		copy(scratch, pool)
		Rank(scratch, Page{Limit: 20}, DefaultLargePoolThreshold)
	}
}

func BenchmarkFuse(b *testing.B) {
	c := Components{Embedding: 0.8, Interaction: 0.4, Overlap: 0.5, Freshness: 1, Context: 0.5, Reciprocity: 0.4}
	w := DefaultContextWeights().Zone

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Fuse(c, w)
	}
}
