// Package experiment assigns users to A/B weight experiments and resolves the
// signal weight vector to use for a ranking call.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/onnwee/matchcore/internal/ranking"
	"github.com/onnwee/matchcore/internal/signal"
)

// ControlVariant is the variant returned whenever no experiment applies.
const ControlVariant = "control"

// allocationTolerance is the allowed deviation of allocations from 100.
const allocationTolerance = 0.01

// Sentinel errors.
var (
	ErrExperimentNotFound = errors.New("experiment not found")
	ErrInvalidAllocation  = errors.New("variant allocations must sum to 100")
	ErrNoVariants         = errors.New("experiment has no variants")
	ErrDuplicateVariant   = errors.New("duplicate variant name")
	ErrInvalidVariant     = errors.New("invalid variant")
)

// Status is the lifecycle state of an experiment.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Variant is one branch of an experiment.
// Allocation is a percentage of traffic. A zero Weights vector means the
// context's default weights.
type Variant struct {
	Name       string               `json:"name"`
	Allocation float64              `json:"allocation"`
	Weights    ranking.WeightVector `json:"weights"`
}

// Experiment is an operator-authored weight experiment for one context.
type Experiment struct {
	Name      string         `json:"name"`
	Context   signal.Context `json:"context"`
	Status    Status         `json:"status"`
	Variants  []Variant      `json:"variants"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Assignment binds a user to a variant for the lifetime of an experiment.
type Assignment struct {
	UserID     string    `json:"user_id"`
	Experiment string    `json:"experiment"`
	Variant    string    `json:"variant"`
	AssignedAt time.Time `json:"assigned_at"`
}

// NameFor returns the experiment name used for a context, e.g. "pulse_weights_v1".
func NameFor(c signal.Context) string {
	return string(c) + "_weights_v1"
}

// Validate checks variant names, weight vectors and that allocations sum to 100.
func (e *Experiment) Validate() error {
	if len(e.Variants) == 0 {
		return ErrNoVariants
	}
	seen := make(signal.Set, len(e.Variants))
	var total float64
	for _, v := range e.Variants {
		if v.Name == "" {
			return fmt.Errorf("%w: empty name", ErrInvalidVariant)
		}
		if seen.Has(v.Name) {
			return fmt.Errorf("%w: %s", ErrDuplicateVariant, v.Name)
		}
		seen[v.Name] = struct{}{}
		if v.Allocation < 0 {
			return fmt.Errorf("%w: %s has negative allocation", ErrInvalidVariant, v.Name)
		}
		if !v.Weights.IsZero() {
			if err := v.Weights.Validate(); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidVariant, v.Name, err)
			}
		}
		total += v.Allocation
	}
	if math.Abs(total-100) > allocationTolerance {
		return fmt.Errorf("%w: got %.2f", ErrInvalidAllocation, total)
	}
	return nil
}

// Variant returns the named variant.
func (e *Experiment) Variant(name string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// Sample selects a variant by cumulative allocation: walking variants in
// declaration order, the first whose cumulative bound exceeds draw wins.
// draw is expected in [0, 100). ok is false when no bound exceeds draw.
func Sample(variants []Variant, draw float64) (name string, ok bool) {
	var cumulative float64
	for _, v := range variants {
		cumulative += v.Allocation
		if draw < cumulative {
			return v.Name, true
		}
	}
	return ControlVariant, false
}

// ExperimentReader reads experiment definitions.
type ExperimentReader interface {
	// GetExperiment returns the named experiment or ErrExperimentNotFound.
	GetExperiment(ctx context.Context, name string) (*Experiment, error)
}

// AssignmentStore persists write-once variant assignments.
type AssignmentStore interface {
	// GetAssignment returns the user's assignment, or nil when none exists.
	GetAssignment(ctx context.Context, userID, experiment string) (*Assignment, error)
	// CreateAssignment stores a if no assignment exists for (UserID, Experiment)
	// and returns the stored assignment. When one already exists it is returned
	// unchanged and a is discarded.
	CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
}

// AssignmentDeleter removes an assignment so the user is bucketed again on the
// next resolve. Deleting a missing assignment is not an error.
type AssignmentDeleter interface {
	DeleteAssignment(ctx context.Context, userID, experiment string) error
}
