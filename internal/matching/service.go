// Package matching is the entry point for ranking and explaining user
// recommendations. It ties the privacy filter, weight resolver, signal
// scorers and ranking engine into the two public operations.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/matchcore/internal/analytics"
	"github.com/onnwee/matchcore/internal/experiment"
	"github.com/onnwee/matchcore/internal/explain"
	"github.com/onnwee/matchcore/internal/privacy"
	"github.com/onnwee/matchcore/internal/ranking"
	"github.com/onnwee/matchcore/internal/scoring"
	"github.com/onnwee/matchcore/internal/signal"
	"github.com/onnwee/matchcore/internal/tracing"
)

// Page bounds.
const (
	DefaultLimit    = 20
	DefaultMaxLimit = 100
)

// maxVerifyRounds bounds how often a page is re-verified to backfill results
// the final privacy check dropped.
const maxVerifyRounds = 3

// WeightResolver returns the weight vector for a user and context.
type WeightResolver interface {
	ResolveWeights(ctx context.Context, userID string, c signal.Context) experiment.Resolution
}

// Emitter accepts analytics events without blocking.
type Emitter interface {
	Emit(ev analytics.Event) bool
}

// Request is the input to GetRankedCandidates.
// A Limit of 0 returns an empty page; callers apply DefaultLimit when unset.
type Request struct {
	UserID  string
	EventID string
	Context string
	Limit   int
	Offset  int
}

// Response is a ranked page plus diagnostics. Results holds fewer than the
// requested limit only when the eligible pool runs out, or when more results
// turned ineligible during the call than maxVerifyRounds could backfill.
type Response struct {
	Results        []ranking.Result `json:"results"`
	Context        signal.Context   `json:"context"`
	Experiment     string           `json:"experiment,omitempty"`
	Variant        string           `json:"variant"`
	WeightFallback string           `json:"weight_fallback,omitempty"`
	Degraded       []ranking.Signal `json:"degraded,omitempty"`
}

// Config holds optional Service settings.
type Config struct {
	MaxLimit           int
	LargePoolThreshold int
	Logger             *slog.Logger
	Metrics            *Metrics
	Emitter            Emitter
	Now                func() time.Time
}

// Service implements GetRankedCandidates and GetMatchExplanation.
type Service struct {
	store     signal.Store
	filter    *privacy.Filter
	resolver  WeightResolver
	executor  *scoring.Executor
	explainer *explain.Generator
	config    Config
}

// NewService creates a matching service.
func NewService(
	store signal.Store,
	filter *privacy.Filter,
	resolver WeightResolver,
	executor *scoring.Executor,
	explainer *explain.Generator,
	config Config,
) *Service {
	if config.MaxLimit <= 0 {
		config.MaxLimit = DefaultMaxLimit
	}
	if config.LargePoolThreshold <= 0 {
		config.LargePoolThreshold = ranking.DefaultLargePoolThreshold
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Service{
		store:     store,
		filter:    filter,
		resolver:  resolver,
		executor:  executor,
		explainer: explainer,
		config:    config,
	}
}

func validateUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Service) validate(req Request) (signal.Context, error) {
	if !validateUUID(req.UserID) {
		return "", ErrInvalidUserID
	}
	c, err := signal.ParseContext(req.Context)
	if err != nil {
		return "", ErrInvalidContext
	}
	if req.Limit < 0 {
		return "", ErrInvalidLimit
	}
	if req.Offset < 0 {
		return "", ErrInvalidOffset
	}
	return c, nil
}

// GetRankedCandidates ranks the users req.UserID may be shown.
//
// Validation errors wrap ErrValidation. A missing user returns ErrUserNotFound.
// When the pool or its privacy data cannot be read, the error wraps
// ErrCandidatePoolUnavailable and no partial ranking is returned. Individual
// signal failures never fail the call; they are listed in Response.Degraded.
func (s *Service) GetRankedCandidates(ctx context.Context, req Request) (_ *Response, err error) {
	sc, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}

	ctx, endSpan := tracing.StartSpan(ctx, "matching.get_ranked_candidates",
		tracing.AttrContext.String(string(sc)),
		tracing.AttrEventID.String(req.EventID))
	start := time.Now()
	defer func() {
		endSpan(err)
		s.observe(sc, start, err)
	}()

	if limit == 0 {
		return &Response{Results: []ranking.Result{}, Context: sc, Variant: experiment.ControlVariant}, nil
	}

	user, err := s.store.GetProfile(ctx, req.UserID)
	if errors.Is(err, signal.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load user: %w", ErrCandidatePoolUnavailable, err)
	}

	pool, err := s.store.ListCandidatePool(ctx, req.UserID, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCandidatePoolUnavailable, err)
	}
	eligible, err := s.filter.FilterCandidates(ctx, req.UserID, req.EventID, pool)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCandidatePoolUnavailable, err)
	}

	resolution := s.resolver.ResolveWeights(ctx, req.UserID, sc)
	tracing.SetAttributes(ctx,
		tracing.AttrPoolSize.Int(len(pool)),
		tracing.AttrEligible.Int(len(eligible)),
		tracing.AttrExperiment.String(resolution.Experiment),
		tracing.AttrVariant.String(resolution.Variant))
	now := s.config.Now()

	base := scoring.Pair{User: *user, Context: sc, EventID: req.EventID, Now: now}
	base.UserEmbeddings, base.UserEmbeddingsErr = s.store.GetEmbeddings(ctx, req.UserID)
	if req.EventID != "" {
		checkIn, err := s.store.GetCheckIn(ctx, req.UserID, req.EventID)
		if err != nil {
			s.config.Logger.Warn("failed to load requester check-in",
				"user_id", req.UserID,
				"event_id", req.EventID,
				"error", err)
		}
		base.UserCheckIn = checkIn
	}

	pairs := make([]scoring.Pair, len(eligible))
	profiles := make(map[string]signal.Profile, len(eligible))
	for i, cand := range eligible {
		p := base
		p.Candidate = cand.Profile
		p.CandidatePrivacy = cand.Privacy
		pairs[i] = p
		profiles[cand.Profile.ID] = cand.Profile
	}

	scored, err := s.executor.ScoreAll(ctx, pairs)
	if err != nil {
		return nil, err
	}

	results := make([]ranking.Result, len(scored))
	for i, sr := range scored {
		results[i] = buildResult(*user, eligible[i], sr, resolution.Weights)
	}

	page, err := s.verifiedPage(ctx, req, results, limit, profiles)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCandidatePoolUnavailable, err)
	}

	resp := &Response{
		Results:        page,
		Context:        sc,
		Experiment:     resolution.Experiment,
		Variant:        resolution.Variant,
		WeightFallback: resolution.Fallback,
		Degraded:       scoring.DegradedSignals(scored),
	}
	if len(resp.Degraded) > 0 {
		names := make([]string, len(resp.Degraded))
		for i, sig := range resp.Degraded {
			names[i] = string(sig)
		}
		tracing.SetAttributes(ctx, tracing.AttrDegraded.StringSlice(names))
	}
	if s.config.Metrics != nil {
		s.config.Metrics.poolSize.WithLabelValues(string(sc)).Observe(float64(len(eligible)))
	}
	s.emit(req, resp, len(pool), len(eligible), start)
	return resp, nil
}

// verifiedPage re-checks the ranked prefix up to offset+limit against fresh
// privacy data and widens the prefix by the number of dropped results until
// the page is full, the pool is exhausted or maxVerifyRounds is reached.
// Dropped results before the offset shift later results forward, as a fresh
// ranking would.
func (s *Service) verifiedPage(ctx context.Context, req Request, results []ranking.Result, limit int, profiles map[string]signal.Profile) ([]ranking.Result, error) {
	if req.Offset >= len(results) {
		return []ranking.Result{}, nil
	}
	need := req.Offset + limit
	window := need
	var kept []ranking.Result
	for round := 1; ; round++ {
		prefix := ranking.Rank(results, ranking.Page{Limit: window}, s.config.LargePoolThreshold)
		var err error
		kept, err = s.filter.Verify(ctx, req.UserID, req.EventID, prefix, profiles)
		if err != nil {
			return nil, err
		}
		dropped := len(prefix) - len(kept)
		if dropped > 0 {
			tracing.AddEvent(ctx, "privacy.verify_dropped",
				attribute.Int("dropped", dropped),
				attribute.Int("round", round))
		}
		if len(kept) >= need || len(prefix) < window || round == maxVerifyRounds {
			break
		}
		window += dropped
	}

	if req.Offset >= len(kept) {
		return []ranking.Result{}, nil
	}
	end := req.Offset + limit
	if end > len(kept) {
		end = len(kept)
	}
	return kept[req.Offset:end], nil
}

// buildResult fuses one candidate's scores. Shared skills and interests are
// only listed when the candidate allows that field to be used.
func buildResult(user signal.Profile, cand privacy.Candidate, sr scoring.Scored, w ranking.WeightVector) ranking.Result {
	r := ranking.Result{
		CandidateID:     cand.Profile.ID,
		Score:           ranking.Fuse(sr.Components, w),
		Components:      sr.Components,
		Category:        ranking.Categorize(sr.Components),
		CommonSkills:    []string{},
		CommonInterests: []string{},
		Reciprocity:     sr.Reciprocity,
	}
	if cand.Privacy.AllowSkillsScoring {
		if shared := signal.Intersect(cand.Profile.Skills, user.Skills); shared != nil {
			r.CommonSkills = shared
		}
	}
	if cand.Privacy.AllowInterestsScoring {
		if shared := signal.Intersect(cand.Profile.Interests, user.Interests); shared != nil {
			r.CommonInterests = shared
		}
	}
	return r
}

func (s *Service) observe(sc signal.Context, start time.Time, err error) {
	if s.config.Metrics == nil || sc == "" {
		return
	}
	outcome := "success"
	switch {
	case errors.Is(err, ErrCandidatePoolUnavailable):
		outcome = "unavailable"
	case err != nil:
		outcome = "error"
	}
	s.config.Metrics.requests.WithLabelValues(string(sc), outcome).Inc()
	s.config.Metrics.duration.WithLabelValues(string(sc)).Observe(time.Since(start).Seconds())
}

func (s *Service) emit(req Request, resp *Response, poolSize, eligible int, start time.Time) {
	if s.config.Emitter == nil {
		return
	}
	ev := analytics.Event{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		Context:        string(resp.Context),
		EventID:        req.EventID,
		Experiment:     resp.Experiment,
		Variant:        resp.Variant,
		WeightFallback: resp.WeightFallback,
		PoolSize:       poolSize,
		EligibleSize:   eligible,
		Candidates:     make([]analytics.CandidateScore, len(resp.Results)),
		DurationMS:     float64(time.Since(start).Microseconds()) / 1000,
		OccurredAt:     s.config.Now(),
	}
	for _, sig := range resp.Degraded {
		ev.Degraded = append(ev.Degraded, string(sig))
	}
	for i, r := range resp.Results {
		components := make(map[string]float64, len(ranking.AllSignals))
		for _, sig := range ranking.AllSignals {
			components[string(sig)] = r.Components.Get(sig)
		}
		ev.Candidates[i] = analytics.CandidateScore{
			CandidateID: r.CandidateID,
			Score:       r.Score,
			Category:    string(r.Category),
			Components:  components,
		}
	}
	if !s.config.Emitter.Emit(ev) {
		s.config.Logger.Debug("analytics event dropped", "user_id", req.UserID)
	}
}

// GetMatchExplanation explains why targetID is a match for userID.
//
// When the target may not be explained to the user, or when explanation data
// cannot be read, the generic explanation is returned instead.
func (s *Service) GetMatchExplanation(ctx context.Context, userID, targetID string) (_ *explain.Explanation, err error) {
	if !validateUUID(userID) {
		return nil, ErrInvalidUserID
	}
	if !validateUUID(targetID) || targetID == userID {
		return nil, ErrInvalidTargetID
	}

	ctx, endSpan := tracing.StartSpan(ctx, "matching.get_match_explanation")
	defer func() { endSpan(err) }()

	user, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, signal.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	target, err := s.store.GetProfile(ctx, targetID)
	if errors.Is(err, signal.ErrNotFound) {
		return nil, ErrTargetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load target: %w", err)
	}

	decision, err := s.filter.CanExplain(ctx, userID, *target)
	if err != nil {
		s.config.Logger.Warn("explain gating unavailable, using generic explanation",
			"user_id", userID,
			"target_id", targetID,
			"error", err)
		return s.generic(), nil
	}
	if !decision.Allowed {
		s.config.Logger.Debug("explanation restricted",
			"user_id", userID,
			"target_id", targetID,
			"reason", decision.Reason)
		return s.generic(), nil
	}

	e, err := s.explainer.Explain(ctx, *user, *target, decision.Privacy)
	if err != nil {
		s.config.Logger.Warn("failed to build explanation, using generic explanation",
			"user_id", userID,
			"target_id", targetID,
			"error", err)
		return s.generic(), nil
	}
	s.countExplanation(e.Generic)
	return &e, nil
}

func (s *Service) generic() *explain.Explanation {
	e := explain.Generic()
	s.countExplanation(true)
	return &e
}

func (s *Service) countExplanation(generic bool) {
	if s.config.Metrics == nil {
		return
	}
	kind := "data"
	if generic {
		kind = "generic"
	}
	s.config.Metrics.explanations.WithLabelValues(kind).Inc()
}
