package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitConfig is a fixed window limit: RequestsPerWindow requests per
// WindowDuration per key.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Validate rejects non-positive limits and windows.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("RequestsPerWindow must be > 0 (got %d)", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("WindowDuration must be > 0 (got %s)", c.WindowDuration)
	}
	return nil
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is the time until the window resets; set only when blocked.
	RetryAfter time.Duration
}

// RateLimitStore keeps per-key window counters.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, cfg RateLimitConfig) Decision
}

type window struct {
	count int
	ends  time.Time
}

// InMemoryRateLimitStore is a process-local RateLimitStore. Call Cleanup
// periodically to drop finished windows.
type InMemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewInMemoryRateLimitStore creates an empty store.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{windows: make(map[string]*window), now: time.Now}
}

// Allow implements RateLimitStore.
func (s *InMemoryRateLimitStore) Allow(_ context.Context, key string, cfg RateLimitConfig) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	win, ok := s.windows[key]
	if !ok || !now.Before(win.ends) {
		s.windows[key] = &window{count: 1, ends: now.Add(cfg.WindowDuration)}
		return Decision{Allowed: true, Remaining: cfg.RequestsPerWindow - 1}
	}
	if win.count < cfg.RequestsPerWindow {
		win.count++
		return Decision{Allowed: true, Remaining: cfg.RequestsPerWindow - win.count}
	}
	return Decision{RetryAfter: win.ends.Sub(now)}
}

// Cleanup drops windows that have ended.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, win := range s.windows {
		if !now.Before(win.ends) {
			delete(s.windows, key)
		}
	}
}

// Len reports how many windows are tracked.
func (s *InMemoryRateLimitStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// windowScript increments KEYS[1], starting a window of ARGV[1] ms on the
// first hit, and returns {count, remaining ms}.
var windowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisRateLimitStore shares windows across replicas. When Redis fails the
// request is allowed and the failure counted.
type RedisRateLimitStore struct {
	client  *redis.Client
	prefix  string
	metrics *Metrics
	logger  *slog.Logger
}

// RedisRateLimitOption configures a RedisRateLimitStore.
type RedisRateLimitOption func(*RedisRateLimitStore)

// WithRateLimitMetrics counts fail-open checks.
func WithRateLimitMetrics(m *Metrics) RedisRateLimitOption {
	return func(s *RedisRateLimitStore) { s.metrics = m }
}

// WithRateLimitLogger sets the logger for fail-open warnings.
func WithRateLimitLogger(l *slog.Logger) RedisRateLimitOption {
	return func(s *RedisRateLimitStore) { s.logger = l }
}

// NewRedisRateLimitStore creates a store keyed under "matchcore:ratelimit:".
func NewRedisRateLimitStore(client *redis.Client, opts ...RedisRateLimitOption) *RedisRateLimitStore {
	s := &RedisRateLimitStore{
		client: client,
		prefix: "matchcore:ratelimit:",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow implements RateLimitStore.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, cfg RateLimitConfig) Decision {
	res, err := windowScript.Run(ctx, s.client, []string{s.prefix + key}, cfg.WindowDuration.Milliseconds()).Int64Slice()
	if err == nil && len(res) != 2 {
		err = fmt.Errorf("unexpected script reply of length %d", len(res))
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncRateLimitStoreFailures()
		}
		s.logger.WarnContext(ctx, "rate limit store unavailable, allowing request",
			slog.String("key", key),
			slog.Any("error", err))
		return Decision{Allowed: true, Remaining: cfg.RequestsPerWindow}
	}

	count := int(res[0])
	if count <= cfg.RequestsPerWindow {
		return Decision{Allowed: true, Remaining: cfg.RequestsPerWindow - count}
	}
	return Decision{RetryAfter: time.Duration(res[1]) * time.Millisecond}
}

// KeyFunc derives the rate limit key of a request.
type KeyFunc func(r *http.Request) string

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// UserKeyFunc keys by authenticated user, falling back to client IP.
func UserKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if id := GetUserID(r.Context()); id != "" {
			return "user:" + id
		}
		return "ip:" + ClientIP(r)
	}
}

// RateLimiter rejects requests over cfg with 429 and sets the
// X-RateLimit-* headers on every response. metrics may be nil.
func RateLimiter(store RateLimitStore, cfg RateLimitConfig, keyFunc KeyFunc, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			keyType, _, _ := strings.Cut(key, ":")

			d := store.Allow(r.Context(), key, cfg)
			if metrics != nil {
				metrics.ObserveRateLimit(routeOf(r.URL.Path), keyType, d.Allowed)
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := retryAfterSeconds(d.RetryAfter)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(retry)*time.Second).Unix(), 10))
			UpdateResponseContext(w, SetErrorCode(r.Context(), "rate_limited"))
			writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
		})
	}
}

// retryAfterSeconds rounds d up to whole seconds, minimum 1.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
