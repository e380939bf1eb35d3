// Package analytics emits one event per ranking call for offline quality
// evaluation. Emission never blocks or fails a ranking call: when the buffer
// is full events are dropped and counted.
package analytics

import (
	"time"
)

// CandidateScore is one ranked candidate as recorded for evaluation.
type CandidateScore struct {
	CandidateID string             `json:"candidate_id"`
	Score       float64            `json:"score"`
	Category    string             `json:"category"`
	Components  map[string]float64 `json:"components"`
}

// Event describes a single ranking call.
type Event struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	Context        string           `json:"context"`
	EventID        string           `json:"event_id,omitempty"`
	Experiment     string           `json:"experiment,omitempty"`
	Variant        string           `json:"variant,omitempty"`
	WeightFallback string           `json:"weight_fallback,omitempty"`
	PoolSize       int              `json:"pool_size"`
	EligibleSize   int              `json:"eligible_size"`
	Degraded       []string         `json:"degraded,omitempty"`
	Candidates     []CandidateScore `json:"candidates"`
	DurationMS     float64          `json:"duration_ms"`
	OccurredAt     time.Time        `json:"occurred_at"`
}
