package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/matchcore/internal/ranking"
	"github.com/onnwee/matchcore/internal/tracing"
)

// DefaultConcurrency bounds concurrent scorer invocations per ranking call.
const DefaultConcurrency = 32

// Scored holds the outcome of running every scorer on one pair.
type Scored struct {
	Components  ranking.Components
	Reciprocity ranking.ReciprocityFlags
	Degraded    []ranking.Signal // signals that fell back after a scorer error
}

// Executor fans scorer invocations out across a bounded number of goroutines.
// A failing or panicking scorer contributes its fallback value instead of
// failing the batch.
type Executor struct {
	scorers     []Scorer
	concurrency int
	metrics     *Metrics
	logger      *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithConcurrency sets the maximum number of concurrent scorer invocations.
func WithConcurrency(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMetrics attaches scoring metrics.
func WithMetrics(m *Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithLogger sets the logger used for degraded-signal diagnostics.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an executor over the given scorers.
func NewExecutor(scorers []Scorer, opts ...ExecutorOption) *Executor {
	e := &Executor{
		scorers:     scorers,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type slot struct {
	score float64
	flags *ranking.ReciprocityFlags
	err   error
}

// ScoreAll scores every pair with every scorer. The returned slice is indexed
// like pairs. It only returns an error when ctx is done.
func (e *Executor) ScoreAll(ctx context.Context, pairs []Pair) (_ []Scored, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "scoring.score_all", tracing.AttrPairs.Int(len(pairs)))
	defer func() { endSpan(err) }()

	slots := make([]slot, len(pairs)*len(e.scorers))

	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for i := range pairs {
		for j, scorer := range e.scorers {
			idx := i*len(e.scorers) + j
			pair := pairs[i]
			g.Go(func() error {
				slots[idx] = e.run(ctx, scorer, pair)
				return nil
			})
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scoring interrupted: %w", err)
	}

	type degradation struct {
		count     int
		candidate string
		err       error
	}
	degraded := make(map[ranking.Signal]*degradation)

	out := make([]Scored, len(pairs))
	for i := range pairs {
		for j, scorer := range e.scorers {
			s := slots[i*len(e.scorers)+j]
			value := s.score
			if s.err != nil {
				value = scorer.Fallback()
				out[i].Degraded = append(out[i].Degraded, scorer.Signal())
				if e.metrics != nil {
					e.metrics.IncDegraded(string(scorer.Signal()))
				}
				d, ok := degraded[scorer.Signal()]
				if !ok {
					d = &degradation{candidate: pairs[i].Candidate.ID, err: s.err}
					degraded[scorer.Signal()] = d
				}
				d.count++
			} else if s.flags != nil {
				out[i].Reciprocity = *s.flags
			}
			out[i].Components.Set(scorer.Signal(), value)
		}
	}

	// one line per degraded signal, not per pair
	for sig, d := range degraded {
		e.logger.Warn("signal degraded to fallback",
			"signal", sig,
			"pairs", d.count,
			"first_candidate_id", d.candidate,
			"error", d.err)
	}
	if e.metrics != nil {
		e.metrics.AddPairs(len(pairs))
	}
	return out, nil
}

func (e *Executor) run(ctx context.Context, scorer Scorer, pair Pair) (result slot) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = slot{err: fmt.Errorf("scorer %s panicked: %v", scorer.Signal(), r)}
		}
		if e.metrics != nil {
			e.metrics.ObserveDuration(string(scorer.Signal()), time.Since(start).Seconds())
		}
	}()

	if err := ctx.Err(); err != nil {
		return slot{err: err}
	}

	if fs, ok := scorer.(FlagScorer); ok {
		score, flags, err := fs.ScoreWithFlags(ctx, pair)
		return slot{score: score, flags: &flags, err: err}
	}
	score, err := scorer.Score(ctx, pair)
	return slot{score: score, err: err}
}

// DegradedSignals returns the distinct degraded signals across results, sorted.
func DegradedSignals(results []Scored) []ranking.Signal {
	seen := make(map[ranking.Signal]struct{})
	for _, r := range results {
		for _, s := range r.Degraded {
			seen[s] = struct{}{}
		}
	}
	out := make([]ranking.Signal, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
