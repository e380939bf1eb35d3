package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/matchcore/internal/api"
	"github.com/onnwee/matchcore/internal/auth"
	"github.com/onnwee/matchcore/internal/config"
	"github.com/onnwee/matchcore/internal/signal"
)

const (
	testSecret = "test-secret-key-for-the-router-tests"
	userA      = "00000000-0000-4000-8000-00000000000a"
	userB      = "00000000-0000-4000-8000-00000000000b"
	userC      = "00000000-0000-4000-8000-00000000000c"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                     config.DefaultPort,
		Env:                      "test",
		JWTSecret:                testSecret,
		InteractionLookbackDays:  config.DefaultInteractionLookbackDays,
		AggregateRefreshInterval: config.DefaultAggregateRefreshInterval,
		AggregateMaxStaleness:    config.DefaultAggregateMaxStaleness,
		ScoringConcurrency:       4,
		LargePoolThreshold:       config.DefaultLargePoolThreshold,
		MaxLimit:                 config.DefaultMaxLimit,
		AnalyticsEnabled:         true,
		AnalyticsBuffer:          16,
		TracingExporter:          config.DefaultTracingExporter,
		RateLimitRequests:        config.DefaultRateLimitRequests,
		RateLimitWindow:          time.Minute,
	}
}

// newTestApp builds the full app over a seeded in-memory store.
func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()

	mem := signal.NewInMemoryStore()
	mem.AddProfile(signal.Profile{ID: userA, Skills: []string{"Go", "SQL"}, Interests: []string{"climbing"}})
	mem.AddProfile(signal.Profile{ID: userB, Skills: []string{"go"}, CreatedAt: time.Now().Add(-48 * time.Hour)})
	mem.AddProfile(signal.Profile{ID: userC, Interests: []string{"climbing"}})

	st := memoryStorage()
	st.signals = mem

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(cfg, st, logger)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	if err := a.start(context.Background()); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	t.Cleanup(a.stop)
	return a
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.NewJWTService(testSecret).GenerateAccessToken(userID)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return "Bearer " + token
}

func serve(a *app, method, target, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func TestRouter_PublicRoutes(t *testing.T) {
	a := newTestApp(t, testConfig())

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"health", "/health", http.StatusOK, `"status":"healthy"`},
		{"ready without backends", "/ready", http.StatusOK, `"database":"ok"`},
		{"root", "/", http.StatusOK, `"service":"matchcore"`},
		{"unknown path", "/v2/recommendations", http.StatusNotFound, api.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(a, http.MethodGet, tt.path, "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body: %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not contain %q", rr.Body.String(), tt.wantBody)
			}
			if rr.Header().Get("X-Request-ID") == "" {
				t.Error("expected X-Request-ID header")
			}
		})
	}
}

func TestRouter_RequiresAuth(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(a, http.MethodGet, "/v1/recommendations?context=pulse", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}

	rr = serve(a, http.MethodGet, "/v1/recommendations?context=pulse", "Bearer not-a-token")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for an invalid token", rr.Code)
	}
}

func TestRouter_Recommendations(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(a, http.MethodGet, "/v1/recommendations?context=pulse&limit=10", bearer(t, userA))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Results []struct {
			CandidateID string  `json:"candidate_id"`
			Score       float64 `json:"score"`
		} `json:"results"`
		Context string `json:"context"`
		Variant string `json:"variant"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Context != "pulse" {
		t.Errorf("context = %q, want pulse", resp.Context)
	}
	if resp.Variant != "control" {
		t.Errorf("variant = %q, want control without experiments", resp.Variant)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	for _, r := range resp.Results {
		if r.CandidateID == userA {
			t.Error("requesting user must not be ranked")
		}
	}

	rr = serve(a, http.MethodGet, "/v1/recommendations?context=nearby", bearer(t, userA))
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), api.ErrCodeInvalidContext) {
		t.Errorf("invalid context: status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestRouter_Explanation(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(a, http.MethodGet, "/v1/recommendations/"+userB+"/explanation", bearer(t, userA))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}
	var resp api.ExplanationResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TargetID != userB || resp.Generic || len(resp.Reasons) == 0 {
		t.Errorf("unexpected explanation: %+v", resp)
	}
}

func TestRouter_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 1
	a := newTestApp(t, cfg)

	token := bearer(t, userA)
	if rr := serve(a, http.MethodGet, "/v1/recommendations?context=pulse", token); rr.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rr.Code)
	}
	rr := serve(a, http.MethodGet, "/v1/recommendations?context=pulse", token)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// Limits are per user.
	if rr := serve(a, http.MethodGet, "/v1/recommendations?context=pulse", bearer(t, userB)); rr.Code != http.StatusOK {
		t.Errorf("other user status = %d, want 200", rr.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	a := newTestApp(t, testConfig())
	serve(a, http.MethodGet, "/v1/recommendations?context=pulse", bearer(t, userA))

	rr := serve(a, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{"http_requests_total", "ranking_requests_total", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestApp_StartStop(t *testing.T) {
	st := memoryStorage()
	a, err := newApp(testConfig(), st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	if err := a.start(context.Background()); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	if !a.refresh.IsRunning() {
		t.Error("expected aggregate refresh job to be running")
	}

	a.stop()
	a.stop() // idempotent

	if a.refresh.IsRunning() {
		t.Error("expected aggregate refresh job to be stopped")
	}
	if st.Close() != nil {
		t.Error("closing in-memory storage should not fail")
	}
}
