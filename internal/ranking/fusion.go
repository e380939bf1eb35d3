package ranking

import (
	"container/heap"
	"sort"
)

// DefaultLargePoolThreshold is the pool size above which Rank uses a bounded partial sort.
const DefaultLargePoolThreshold = 5000

// Category labels why a candidate was recommended.
type Category string

// Categories in classification priority order.
const (
	CategoryProfessional      Category = "professional"
	CategoryMutualInterest    Category = "mutual_interest"
	CategorySimilarBackground Category = "similar_background"
	CategoryEventConnection   Category = "event_connection"
	CategoryDiscovery         Category = "discovery"
)

// Components holds the six normalized signal scores for one candidate.
type Components struct {
	Embedding   float64 `json:"embedding"`
	Interaction float64 `json:"interaction"`
	Overlap     float64 `json:"overlap"`
	Freshness   float64 `json:"freshness"`
	Context     float64 `json:"context"`
	Reciprocity float64 `json:"reciprocity"`
}

// Get returns the score of s.
func (c Components) Get(s Signal) float64 {
	switch s {
	case SignalEmbedding:
		return c.Embedding
	case SignalInteraction:
		return c.Interaction
	case SignalOverlap:
		return c.Overlap
	case SignalFreshness:
		return c.Freshness
	case SignalContext:
		return c.Context
	case SignalReciprocity:
		return c.Reciprocity
	default:
		return 0
	}
}

// Set stores v as the score of s, clamped to [0, 1].
func (c *Components) Set(s Signal, v float64) {
	v = Clamp01(v)
	switch s {
	case SignalEmbedding:
		c.Embedding = v
	case SignalInteraction:
		c.Interaction = v
	case SignalOverlap:
		c.Overlap = v
	case SignalFreshness:
		c.Freshness = v
	case SignalContext:
		c.Context = v
	case SignalReciprocity:
		c.Reciprocity = v
	}
}

// ReciprocityFlags records which signs of interest the candidate has already shown.
type ReciprocityFlags struct {
	FollowsYou     bool `json:"follows_you"`
	SavedYou       bool `json:"saved_you"`
	ViewedYou      bool `json:"viewed_you"`
	PendingMeeting bool `json:"pending_meeting"`
}

// Result is one scored candidate.
type Result struct {
	CandidateID     string           `json:"candidate_id"`
	Score           float64          `json:"score"`
	Components      Components       `json:"components"`
	Category        Category         `json:"category"`
	CommonSkills    []string         `json:"common_skills"`
	CommonInterests []string         `json:"common_interests"`
	Reciprocity     ReciprocityFlags `json:"reciprocity"`
}

// Page bounds a ranked slice.
type Page struct {
	Limit  int
	Offset int
}

// Clamp01 restricts v to [0, 1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Fuse computes the weighted sum of component scores.
//
// Formula: Σ weight[i] * score[i], clamped to [0, 1]
func Fuse(c Components, w WeightVector) float64 {
	var score float64
	for _, s := range AllSignals {
		score += w.Get(s) * c.Get(s)
	}
	return Clamp01(score)
}

// Categorize assigns a category using first-match priority order.
func Categorize(c Components) Category {
	switch {
	case c.Overlap > 0.6:
		return CategoryProfessional
	case c.Reciprocity > 0.5:
		return CategoryMutualInterest
	case c.Embedding > 0.7:
		return CategorySimilarBackground
	case c.Context > 0.5:
		return CategoryEventConnection
	default:
		return CategoryDiscovery
	}
}

// less orders results by score descending, then candidate ID ascending.
func less(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.CandidateID < b.CandidateID
}

// Rank orders results and returns the requested page.
// Pools larger than largeThreshold use a bounded heap selection of the first
// offset+limit results, which yields the same page as a full sort.
// The input slice is reordered in place.
func Rank(results []Result, page Page, largeThreshold int) []Result {
	if page.Limit <= 0 || page.Offset >= len(results) {
		return []Result{}
	}

	need := page.Offset + page.Limit
	if need > len(results) || need < 0 {
		need = len(results)
	}

	var ordered []Result
	if largeThreshold > 0 && len(results) > largeThreshold && need < len(results) {
		ordered = topK(results, need)
	} else {
		sort.Slice(results, func(i, j int) bool { return less(results[i], results[j]) })
		ordered = results[:need]
	}

	out := make([]Result, need-page.Offset)
	copy(out, ordered[page.Offset:need])
	return out
}

// resultHeap is a min-heap by rank order: the root is the worst kept result.
type resultHeap []Result

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return less(h[j], h[i]) }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)        { *h = append(*h, x.(Result)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topK returns the k best results in rank order.
func topK(results []Result, k int) []Result {
	h := make(resultHeap, 0, k)
	for _, r := range results {
		if h.Len() < k {
			heap.Push(&h, r)
			continue
		}
		if less(r, h[0]) {
			h[0] = r
			heap.Fix(&h, 0)
		}
	}
	out := []Result(h)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
