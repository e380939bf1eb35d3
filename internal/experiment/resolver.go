package experiment

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/onnwee/matchcore/internal/ranking"
	"github.com/onnwee/matchcore/internal/signal"
)

// Fallback reasons reported on Resolution and in metrics.
const (
	FallbackExperimentStore = "experiment_store_error"
	FallbackInvalidConfig   = "invalid_config"
	FallbackAssignmentRead  = "assignment_read_error"
	FallbackAssignmentWrite = "assignment_write_error"
	FallbackUnknownVariant  = "unknown_variant"
	FallbackNoVariantMatch  = "no_variant_matched"
)

// Resolution is the weight vector chosen for one ranking call.
type Resolution struct {
	Experiment string               `json:"experiment"`
	Variant    string               `json:"variant"`
	Weights    ranking.WeightVector `json:"weights"`
	// Fallback names why control was used instead of a real assignment.
	// Empty when the experiment resolved normally or no experiment is running.
	Fallback string `json:"fallback,omitempty"`
}

// Resolver buckets users into weight experiments.
type Resolver struct {
	experiments ExperimentReader
	assignments AssignmentStore
	defaults    ranking.ContextWeights
	logger      *slog.Logger
	metrics     *Metrics
	now         func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRandSource injects the source used for variant draws.
func WithRandSource(src rand.Source) ResolverOption {
	return func(r *Resolver) { r.rng = rand.New(src) }
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithResolverMetrics attaches metrics.
func WithResolverMetrics(m *Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// WithClock overrides the assignment timestamp source.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver. defaults supplies the control weights per context.
func NewResolver(experiments ExperimentReader, assignments AssignmentStore, defaults ranking.ContextWeights, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		experiments: experiments,
		assignments: assignments,
		defaults:    defaults,
		logger:      slog.Default(),
		now:         time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveWeights returns the variant and weight vector for userID in context c.
// It never fails: configuration and storage problems resolve to control with
// Resolution.Fallback set.
func (r *Resolver) ResolveWeights(ctx context.Context, userID string, c signal.Context) Resolution {
	name := NameFor(c)
	control := Resolution{Experiment: name, Variant: ControlVariant, Weights: r.defaults.For(c)}

	exp, err := r.experiments.GetExperiment(ctx, name)
	if errors.Is(err, ErrExperimentNotFound) {
		return r.resolved(control)
	}
	if err != nil {
		return r.fallback(control, FallbackExperimentStore, err)
	}
	if exp.Status != StatusRunning {
		return r.resolved(control)
	}
	if err := exp.Validate(); err != nil {
		return r.fallback(control, FallbackInvalidConfig, err)
	}

	existing, err := r.assignments.GetAssignment(ctx, userID, name)
	if err != nil {
		return r.fallback(control, FallbackAssignmentRead, err)
	}
	if existing != nil {
		return r.forVariant(exp, existing.Variant, control)
	}

	variant, matched := Sample(exp.Variants, r.draw())
	stored, err := r.assignments.CreateAssignment(ctx, Assignment{
		UserID:     userID,
		Experiment: name,
		Variant:    variant,
		AssignedAt: r.now(),
	})
	if err != nil {
		return r.fallback(control, FallbackAssignmentWrite, err)
	}
	if r.metrics != nil && stored.Variant == variant {
		r.metrics.IncAssignment(name, stored.Variant)
	}
	if !matched && stored.Variant == ControlVariant {
		res := r.forVariant(exp, ControlVariant, control)
		res.Fallback = FallbackNoVariantMatch
		if r.metrics != nil {
			r.metrics.IncFallback(FallbackNoVariantMatch)
		}
		return res
	}
	return r.forVariant(exp, stored.Variant, control)
}

// forVariant returns the weights of the named variant. A zero weight vector
// means the context defaults. Control is always resolvable even when the
// experiment does not declare it.
func (r *Resolver) forVariant(exp *Experiment, name string, control Resolution) Resolution {
	v, ok := exp.Variant(name)
	if !ok {
		if name == ControlVariant {
			return r.resolved(control)
		}
		return r.fallback(control, FallbackUnknownVariant, nil)
	}
	res := control
	res.Variant = v.Name
	if !v.Weights.IsZero() {
		res.Weights = v.Weights
	}
	return r.resolved(res)
}

func (r *Resolver) resolved(res Resolution) Resolution {
	if r.metrics != nil {
		r.metrics.IncResolution(res.Experiment, res.Variant)
	}
	return res
}

func (r *Resolver) fallback(control Resolution, reason string, err error) Resolution {
	r.logger.Warn("experiment resolution fell back to control",
		"experiment", control.Experiment,
		"reason", reason,
		"error", err)
	if r.metrics != nil {
		r.metrics.IncFallback(reason)
	}
	control.Fallback = reason
	return r.resolved(control)
}

// draw returns a uniform value in [0, 100).
func (r *Resolver) draw() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() * 100
}
