// Package privacy decides which candidates a user may be shown.
//
// The filter runs before scoring to shrink the pool and again on the final
// page against a fresh snapshot, so a block or opt-out that lands while a
// ranking call is in flight is still honored. It fails closed: when privacy
// data cannot be read, no candidates are returned.
package privacy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/matchcore/internal/ranking"
	"github.com/onnwee/matchcore/internal/signal"
	"github.com/onnwee/matchcore/internal/tracing"
)

// DefaultSkipWindow is how long a skipped candidate stays out of the feed.
const DefaultSkipWindow = 24 * time.Hour

// Reason names the rule that excluded a candidate.
type Reason string

const (
	ReasonSelf           Reason = "self"
	ReasonBlocked        Reason = "blocked"
	ReasonSkipped        Reason = "skipped"
	ReasonOptedOut       Reason = "opted_out"
	ReasonHidden         Reason = "hidden"
	ReasonMutualFollow   Reason = "mutual_follow_required"
	ReasonNotCheckedIn   Reason = "not_checked_in"
	ReasonPrivateProfile Reason = "private_profile"
)

// Reader is the data the filter needs.
type Reader interface {
	signal.PrivacyReader
	signal.GraphReader
	signal.EventReader
}

// Candidate is an eligible candidate together with its effective privacy settings.
type Candidate struct {
	Profile signal.Profile
	Privacy signal.PrivacySettings
}

// Filter applies eligibility rules to candidate pools.
type Filter struct {
	store      Reader
	skipWindow time.Duration
	now        func() time.Time
	logger     *slog.Logger
	metrics    *Metrics
}

// Option configures a Filter.
type Option func(*Filter)

// WithSkipWindow overrides DefaultSkipWindow.
func WithSkipWindow(d time.Duration) Option {
	return func(f *Filter) {
		if d > 0 {
			f.skipWindow = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) { f.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Filter) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithMetrics attaches exclusion metrics.
func WithMetrics(m *Metrics) Option {
	return func(f *Filter) { f.metrics = m }
}

// NewFilter creates a privacy filter.
func NewFilter(store Reader, opts ...Option) *Filter {
	f := &Filter{
		store:      store,
		skipWindow: DefaultSkipWindow,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// snapshot holds the requester-side data every rule reads.
type snapshot struct {
	userID    string
	blocked   signal.Set
	skipped   signal.Set
	settings  map[string]signal.PrivacySettings
	following map[string]signal.FollowStatus
	followers map[string]signal.FollowStatus
	checkIns  map[string]signal.CheckIn // nil when no event filter applies
}

type rules struct {
	eventID   string
	skipRules bool
}

func (f *Filter) load(ctx context.Context, userID string, candidateIDs []string, r rules) (*snapshot, error) {
	s := &snapshot{userID: userID}
	var err error

	if s.blocked, err = f.store.GetBlockedUsers(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load block list: %w", err)
	}
	if r.skipRules {
		if s.skipped, err = f.store.GetSkippedSince(ctx, userID, f.now().Add(-f.skipWindow)); err != nil {
			return nil, fmt.Errorf("failed to load skip list: %w", err)
		}
	}
	if s.settings, err = f.store.GetPrivacySettings(ctx, candidateIDs); err != nil {
		return nil, fmt.Errorf("failed to load privacy settings: %w", err)
	}
	if s.following, err = f.store.ListFollowing(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load following: %w", err)
	}
	if s.followers, err = f.store.ListFollowers(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load followers: %w", err)
	}
	if r.eventID != "" {
		if s.checkIns, err = f.store.ListCheckIns(ctx, r.eventID); err != nil {
			return nil, fmt.Errorf("failed to load check-ins: %w", err)
		}
	}
	return s, nil
}

// evaluate returns the candidate's effective settings and the first rule it fails, if any.
func (s *snapshot) evaluate(p signal.Profile, r rules) (signal.PrivacySettings, Reason, bool) {
	settings, ok := s.settings[p.ID]
	if !ok {
		settings = signal.DefaultPrivacySettings(p.ID)
	}

	switch {
	case p.ID == s.userID:
		return settings, ReasonSelf, false
	case s.blocked.Has(p.ID):
		return settings, ReasonBlocked, false
	case r.skipRules && s.skipped.Has(p.ID):
		return settings, ReasonSkipped, false
	case !settings.AIMatchingEnabled || !settings.ShowInRecommendations:
		return settings, ReasonOptedOut, false
	case settings.HidesFrom(s.userID):
		return settings, ReasonHidden, false
	case settings.RequireMutualFollow &&
		(s.following[p.ID] != signal.FollowAccepted || s.followers[p.ID] != signal.FollowAccepted):
		return settings, ReasonMutualFollow, false
	case r.eventID != "" && !hasCheckIn(s.checkIns, p.ID):
		return settings, ReasonNotCheckedIn, false
	case p.IsPrivate && s.following[p.ID] != signal.FollowAccepted:
		return settings, ReasonPrivateProfile, false
	}
	return settings, "", true
}

func hasCheckIn(checkIns map[string]signal.CheckIn, userID string) bool {
	_, ok := checkIns[userID]
	return ok
}

// FilterCandidates returns the members of pool that userID may be shown,
// in pool order. eventID, when set, restricts to that event's attendees.
func (f *Filter) FilterCandidates(ctx context.Context, userID, eventID string, pool []signal.Profile) (_ []Candidate, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "privacy.filter_candidates")
	defer func() { endSpan(err) }()

	r := rules{eventID: eventID, skipRules: true}
	snap, err := f.load(ctx, userID, profileIDs(pool), r)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(pool))
	for _, p := range pool {
		settings, reason, ok := snap.evaluate(p, r)
		if !ok {
			f.excluded(reason)
			continue
		}
		out = append(out, Candidate{Profile: p, Privacy: settings})
	}
	return out, nil
}

// Verify re-checks a ranked page against a fresh snapshot and drops any
// result that is no longer eligible. profiles must contain every result's candidate.
func (f *Filter) Verify(ctx context.Context, userID, eventID string, page []ranking.Result, profiles map[string]signal.Profile) (_ []ranking.Result, err error) {
	if len(page) == 0 {
		return page, nil
	}
	ctx, endSpan := tracing.StartSpan(ctx, "privacy.verify")
	defer func() { endSpan(err) }()

	ids := make([]string, len(page))
	for i, res := range page {
		ids[i] = res.CandidateID
	}

	r := rules{eventID: eventID, skipRules: true}
	snap, err := f.load(ctx, userID, ids, r)
	if err != nil {
		return nil, err
	}

	out := make([]ranking.Result, 0, len(page))
	for _, res := range page {
		p, ok := profiles[res.CandidateID]
		if !ok {
			f.logger.Warn("dropping ranked result without profile", "candidate_id", res.CandidateID)
			continue
		}
		if _, reason, ok := snap.evaluate(p, r); !ok {
			f.excluded(reason)
			f.logger.Warn("dropping ranked result that became ineligible",
				"candidate_id", res.CandidateID,
				"reason", reason)
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// Decision is the outcome of an explain-gating check.
type Decision struct {
	Allowed bool
	Reason  Reason
	Privacy signal.PrivacySettings
}

// CanExplain reports whether userID may see a data-derived explanation about
// target. Feed-only rules (skips and event check-in) do not apply.
func (f *Filter) CanExplain(ctx context.Context, userID string, target signal.Profile) (Decision, error) {
	r := rules{}
	snap, err := f.load(ctx, userID, []string{target.ID}, r)
	if err != nil {
		return Decision{}, err
	}
	settings, reason, ok := snap.evaluate(target, r)
	return Decision{Allowed: ok, Reason: reason, Privacy: settings}, nil
}

func (f *Filter) excluded(reason Reason) {
	if f.metrics != nil {
		f.metrics.IncExcluded(string(reason))
	}
}

func profileIDs(pool []signal.Profile) []string {
	ids := make([]string, len(pool))
	for i, p := range pool {
		ids[i] = p.ID
	}
	return ids
}
