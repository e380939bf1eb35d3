package matching

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/matchcore/internal/analytics"
	"github.com/onnwee/matchcore/internal/experiment"
	"github.com/onnwee/matchcore/internal/explain"
	"github.com/onnwee/matchcore/internal/privacy"
	"github.com/onnwee/matchcore/internal/ranking"
	"github.com/onnwee/matchcore/internal/scoring"
	"github.com/onnwee/matchcore/internal/signal"
)

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

const (
	userA = "00000000-0000-4000-8000-00000000000a"
	userB = "00000000-0000-4000-8000-00000000000b"
	userC = "00000000-0000-4000-8000-00000000000c"
	userD = "00000000-0000-4000-8000-00000000000d"
	userE = "00000000-0000-4000-8000-00000000000e"
	userF = "00000000-0000-4000-8000-00000000000f"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recordingEmitter) Emit(ev analytics.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(store signal.Store, cfg Config) *Service {
	clock := func() time.Time { return now }
	filter := privacy.NewFilter(store, privacy.WithClock(clock), privacy.WithLogger(discard()))
	experiments := experiment.NewInMemoryStore()
	resolver := experiment.NewResolver(experiments, experiments, ranking.DefaultContextWeights(), experiment.WithResolverLogger(discard()))
	executor := scoring.NewExecutor(scoring.NewDefaultScorers(store, scoring.Options{}), scoring.WithLogger(discard()))
	cfg.Now = clock
	cfg.Logger = discard()
	return NewService(store, filter, resolver, executor, explain.NewGenerator(store), cfg)
}

// seed builds a small network around userA.
func seed() *signal.InMemoryStore {
	s := signal.NewInMemoryStore()
	s.AddProfile(signal.Profile{ID: userA, Skills: []string{"Go", "SQL"}, Interests: []string{"climbing"}, LookingFor: []string{"mentor"}, Organization: "Acme"})
	s.AddProfile(signal.Profile{ID: userB, Skills: []string{"go", "sql", "k8s"}, LookingFor: []string{"mentee"}, CreatedAt: now.Add(-2 * 24 * time.Hour)})
	s.AddProfile(signal.Profile{ID: userC, Interests: []string{"climbing"}})
	s.AddProfile(signal.Profile{ID: userD, Skills: []string{"Go"}})
	s.AddProfile(signal.Profile{ID: userE})
	s.AddProfile(signal.Profile{ID: userF})

	s.Block(userD, userA)
	optOut := signal.DefaultPrivacySettings(userE)
	optOut.AIMatchingEnabled = false
	s.SetPrivacySettings(optOut)
	s.Follow(userC, userA, signal.FollowAccepted)
	s.AddInteraction(signal.InteractionEvent{ActorID: userA, TargetID: userC, Type: signal.EventMessageReplied, OccurredAt: now.Add(-24 * time.Hour)})
	return s
}

func resultIDs(results []ranking.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.CandidateID
	}
	return out
}

func TestGetRankedCandidates_Validation(t *testing.T) {
	svc := newService(seed(), Config{})

	tests := []struct {
		name     string
		req      Request
		expected error
	}{
		{"malformed user id", Request{UserID: "a", Context: "pulse", Limit: 10}, ErrInvalidUserID},
		{"unknown context", Request{UserID: userA, Context: "feed", Limit: 10}, ErrInvalidContext},
		{"negative limit", Request{UserID: userA, Context: "pulse", Limit: -1}, ErrInvalidLimit},
		{"negative offset", Request{UserID: userA, Context: "zone", Limit: 1, Offset: -5}, ErrInvalidOffset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetRankedCandidates(context.Background(), tt.req)
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected error to wrap ErrValidation, got %v", err)
			}
		})
	}
}

func TestGetRankedCandidates_ExcludesIneligibleAndOrders(t *testing.T) {
	svc := newService(seed(), Config{})

	resp, err := svc.GetRankedCandidates(context.Background(), Request{UserID: userA, Context: "pulse", Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := map[string]bool{}
	for _, r := range resp.Results {
		got[r.CandidateID] = true
	}
	if got[userD] || got[userE] || got[userA] {
		t.Errorf("blocked, opted-out or self candidate returned: %v", resultIDs(resp.Results))
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %v", resultIDs(resp.Results))
	}
	for i := 1; i < len(resp.Results); i++ {
		prev, cur := resp.Results[i-1], resp.Results[i]
		if prev.Score < cur.Score || (prev.Score == cur.Score && prev.CandidateID > cur.CandidateID) {
			t.Errorf("results out of order at %d: %+v before %+v", i, prev, cur)
		}
	}
	if resp.Variant != experiment.ControlVariant {
		t.Errorf("expected control variant with no experiment, got %s", resp.Variant)
	}
}

func TestGetRankedCandidates_MissingEmbeddingUsesFallback(t *testing.T) {
	svc := newService(seed(), Config{})
	resp, err := svc.GetRankedCandidates(context.Background(), Request{UserID: userA, Context: "pulse", Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	weights := ranking.DefaultContextWeights().Pulse
	for _, r := range resp.Results {
		if math.Abs(r.Components.Embedding-scoring.EmbeddingFallback) > 1e-9 {
			t.Errorf("%s: expected embedding fallback, got %f", r.CandidateID, r.Components.Embedding)
		}
		if want := ranking.Fuse(r.Components, weights); r.Score != want {
			t.Errorf("%s: expected score %f, got %f", r.CandidateID, want, r.Score)
		}
	}
}

func TestGetRankedCandidates_ResultDetails(t *testing.T) {
	svc := newService(seed(), Config{})
	resp, err := svc.GetRankedCandidates(context.Background(), Request{UserID: userA, Context: "pulse", Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byID := map[string]ranking.Result{}
	for _, r := range resp.Results {
		byID[r.CandidateID] = r
	}
	if want := []string{"go", "sql"}; !reflect.DeepEqual(byID[userB].CommonSkills, want) {
		t.Errorf("expected common skills %v, got %v", want, byID[userB].CommonSkills)
	}
	if !byID[userC].Reciprocity.FollowsYou {
		t.Error("expected follows-you flag for userC")
	}
	if byID[userC].Components.Interaction <= 0 {
		t.Error("expected interaction history to score for userC")
	}
	if byID[userF].CommonSkills == nil || byID[userF].CommonInterests == nil {
		t.Error("expected empty, non-nil common lists")
	}
}

func TestGetRankedCandidates_Deterministic(t *testing.T) {
	svc := newService(seed(), Config{})
	req := Request{UserID: userA, Context: "zone", Limit: 20}

	first, err := svc.GetRankedCandidates(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.GetRankedCandidates(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first.Results, second.Results) {
		t.Errorf("expected identical results\nfirst:  %+v\nsecond: %+v", first.Results, second.Results)
	}
}

func TestGetRankedCandidates_Pagination(t *testing.T) {
	svc := newService(seed(), Config{MaxLimit: 2})
	ctx := context.Background()

	full, err := newService(seed(), Config{}).GetRankedCandidates(ctx, Request{UserID: userA, Context: "pulse", Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	capped, err := svc.GetRankedCandidates(ctx, Request{UserID: userA, Context: "pulse", Limit: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(capped.Results) != 2 {
		t.Fatalf("expected limit to be capped at 2, got %d", len(capped.Results))
	}
	rest, err := svc.GetRankedCandidates(ctx, Request{UserID: userA, Context: "pulse", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	paged := append(resultIDs(capped.Results), resultIDs(rest.Results)...)
	if !reflect.DeepEqual(paged, resultIDs(full.Results)) {
		t.Errorf("expected pages %v to match full ranking %v", paged, resultIDs(full.Results))
	}

	empty, err := svc.GetRankedCandidates(ctx, Request{UserID: userA, Context: "pulse", Limit: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if empty.Results == nil || len(empty.Results) != 0 {
		t.Errorf("expected empty non-nil page for limit 0, got %v", empty.Results)
	}
}

func TestGetRankedCandidates_EventScope(t *testing.T) {
	store := seed()
	const eventID = "event-1"
	store.CheckIn(signal.CheckIn{UserID: userA, EventID: eventID, CheckedInAt: now.Add(-2 * time.Hour)})
	store.CheckIn(signal.CheckIn{UserID: userC, EventID: eventID, CheckedInAt: now.Add(-10 * time.Minute)})
	svc := newService(store, Config{})

	resp, err := svc.GetRankedCandidates(context.Background(), Request{UserID: userA, EventID: eventID, Context: "zone", Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{userC}; !reflect.DeepEqual(resultIDs(resp.Results), want) {
		t.Fatalf("expected only checked-in candidates %v, got %v", want, resultIDs(resp.Results))
	}
	// both checked in (+0.3) and candidate checked in within the hour (+0.2)
	if got := resp.Results[0].Components.Context; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("expected context score 0.5, got %f", got)
	}
}

// lateBlockStore reports target as blocked from the second block-list read
// onward, as if the block landed while the ranking call was in flight.
type lateBlockStore struct {
	*signal.InMemoryStore
	target string

	mu    sync.Mutex
	reads int
}

func (s *lateBlockStore) GetBlockedUsers(ctx context.Context, userID string) (signal.Set, error) {
	set, err := s.InMemoryStore.GetBlockedUsers(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.reads++
	late := s.reads > 1
	s.mu.Unlock()
	if late {
		set[s.target] = struct{}{}
	}
	return set, nil
}

func TestGetRankedCandidates_BackfillsVerifiedPage(t *testing.T) {
	ctx := context.Background()
	full, err := newService(seed(), Config{}).GetRankedCandidates(ctx, Request{UserID: userA, Context: "pulse", Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ranked := resultIDs(full.Results)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 eligible candidates, got %v", ranked)
	}

	tests := []struct {
		name   string
		limit  int
		offset int
		want   []string
	}{
		{name: "first page refilled", limit: 2, want: ranked[1:3]},
		{name: "later page shifts forward", limit: 1, offset: 1, want: ranked[2:3]},
		{name: "pool exhausted", limit: 3, want: ranked[1:3]},
		{name: "offset past verified results", limit: 1, offset: 2, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &lateBlockStore{InMemoryStore: seed(), target: ranked[0]}
			resp, err := newService(store, Config{}).GetRankedCandidates(ctx, Request{UserID: userA, Context: "pulse", Limit: tt.limit, Offset: tt.offset})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := resultIDs(resp.Results); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

type outageStore struct {
	*signal.InMemoryStore
}

func (outageStore) ListCandidatePool(context.Context, string, string) ([]signal.Profile, error) {
	return nil, errors.New("connection refused")
}

func TestGetRankedCandidates_PoolOutage(t *testing.T) {
	svc := newService(outageStore{seed()}, Config{})
	resp, err := svc.GetRankedCandidates(context.Background(), Request{UserID: userA, Context: "pulse", Limit: 20})
	if !errors.Is(err, ErrCandidatePoolUnavailable) {
		t.Fatalf("expected ErrCandidatePoolUnavailable, got %v", err)
	}
	if resp != nil {
		t.Errorf("expected no response on outage, got %+v", resp)
	}
}

type blockListOutage struct {
	*signal.InMemoryStore
}

func (blockListOutage) GetBlockedUsers(context.Context, string) (signal.Set, error) {
	return nil, errors.New("timeout")
}

func TestGetRankedCandidates_PrivacyOutageIsFatal(t *testing.T) {
	svc := newService(blockListOutage{seed()}, Config{})
	_, err := svc.GetRankedCandidates(context.Background(), Request{UserID: userA, Context: "pulse", Limit: 20})
	if !errors.Is(err, ErrCandidatePoolUnavailable) {
		t.Fatalf("expected ErrCandidatePoolUnavailable, got %v", err)
	}
}

type embeddingOutage struct {
	*signal.InMemoryStore
}

func (embeddingOutage) GetEmbeddings(context.Context, string) (map[signal.EmbeddingKind]signal.Embedding, error) {
	return nil, errors.New("vector index offline")
}

func TestGetRankedCandidates_DegradesSignal(t *testing.T) {
	svc := newService(embeddingOutage{seed()}, Config{})
	resp, err := svc.GetRankedCandidates(context.Background(), Request{UserID: userA, Context: "pulse", Limit: 20})
	if err != nil {
		t.Fatalf("signal outage must not fail ranking: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Errorf("expected 3 results, got %d", len(resp.Results))
	}
	if want := []ranking.Signal{ranking.SignalEmbedding}; !reflect.DeepEqual(resp.Degraded, want) {
		t.Errorf("expected degraded %v, got %v", want, resp.Degraded)
	}
}

func TestGetRankedCandidates_UnknownUser(t *testing.T) {
	svc := newService(seed(), Config{})
	_, err := svc.GetRankedCandidates(context.Background(), Request{UserID: "00000000-0000-4000-8000-000000000099", Context: "pulse", Limit: 20})
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGetRankedCandidates_EmitsAnalytics(t *testing.T) {
	emitter := &recordingEmitter{}
	svc := newService(seed(), Config{Emitter: emitter})
	resp, err := svc.GetRankedCandidates(context.Background(), Request{UserID: userA, Context: "pulse", Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emitter.events) != 1 {
		t.Fatalf("expected 1 analytics event, got %d", len(emitter.events))
	}
	ev := emitter.events[0]
	if ev.UserID != userA || ev.Variant != resp.Variant || len(ev.Candidates) != len(resp.Results) {
		t.Errorf("unexpected analytics event: %+v", ev)
	}
	if ev.PoolSize != 5 || ev.EligibleSize != 3 {
		t.Errorf("expected pool 5 / eligible 3, got %d / %d", ev.PoolSize, ev.EligibleSize)
	}
	if _, ok := ev.Candidates[0].Components[string(ranking.SignalEmbedding)]; !ok {
		t.Error("expected component scores in analytics event")
	}
}

func TestGetMatchExplanation(t *testing.T) {
	svc := newService(seed(), Config{})
	ctx := context.Background()

	tests := []struct {
		name      string
		target    string
		generic   bool
		expectErr error
	}{
		{name: "shared skills", target: userB},
		{name: "follows user", target: userC},
		{name: "opted out target", target: userE, generic: true},
		{name: "blocked target", target: userD, generic: true},
		{name: "nothing in common", target: userF, generic: true},
		{name: "self", target: userA, expectErr: ErrInvalidTargetID},
		{name: "malformed target", target: "nope", expectErr: ErrInvalidTargetID},
		{name: "unknown target", target: "00000000-0000-4000-8000-000000000099", expectErr: ErrTargetNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.GetMatchExplanation(ctx, userA, tt.target)
			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Fatalf("expected %v, got %v", tt.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Generic != tt.generic {
				t.Errorf("expected generic=%v, got %+v", tt.generic, got)
			}
		})
	}
}
