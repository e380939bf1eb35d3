package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/matchcore/internal/aggregate"
	"github.com/onnwee/matchcore/internal/analytics"
	"github.com/onnwee/matchcore/internal/api"
	"github.com/onnwee/matchcore/internal/auth"
	"github.com/onnwee/matchcore/internal/config"
	"github.com/onnwee/matchcore/internal/experiment"
	"github.com/onnwee/matchcore/internal/explain"
	"github.com/onnwee/matchcore/internal/health"
	"github.com/onnwee/matchcore/internal/jobs"
	"github.com/onnwee/matchcore/internal/matching"
	"github.com/onnwee/matchcore/internal/middleware"
	"github.com/onnwee/matchcore/internal/privacy"
	"github.com/onnwee/matchcore/internal/ranking"
	"github.com/onnwee/matchcore/internal/scoring"
)

const serviceName = "matchcore"

// rateLimitCleanupInterval controls how often expired in-memory buckets are evicted.
const rateLimitCleanupInterval = time.Minute

// app owns the HTTP handler and the background workers behind it.
type app struct {
	handler  http.Handler
	service  *matching.Service
	refresh  *aggregate.RefreshJob
	emitter  *analytics.Emitter // nil when analytics is disabled
	limiter  *middleware.InMemoryRateLimitStore
	registry *prometheus.Registry
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// newApp wires every component over st.
func newApp(cfg *config.Config, st *storage, logger *slog.Logger) (*app, error) {
	calibration, err := ranking.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		// LoadCalibration already fell back to defaults.
		logger.Warn("using default calibration", "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	httpMetrics := middleware.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	aggregateMetrics := aggregate.NewMetrics()
	scoringMetrics := scoring.NewMetrics()
	privacyMetrics := privacy.NewMetrics()
	experimentMetrics := experiment.NewMetrics()
	matchingMetrics := matching.NewMetrics()
	analyticsMetrics := analytics.NewMetrics()

	for _, m := range []interface{ Register(prometheus.Registerer) error }{
		httpMetrics, jobMetrics, aggregateMetrics, scoringMetrics,
		privacyMetrics, experimentMetrics, matchingMetrics, analyticsMetrics,
	} {
		if err := m.Register(reg); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	// Interaction aggregates: Redis when available so every replica shares them.
	var aggregateStore aggregate.Store = aggregate.NewInMemoryStore()
	if st.redis != nil {
		aggregateStore = aggregate.NewRedisStore(st.redis, 2*cfg.AggregateMaxStaleness)
	}
	tracker := aggregate.NewDirtyTracker()
	cache := aggregate.NewCache(aggregateStore, tracker, cfg.AggregateMaxStaleness, logger, aggregateMetrics)
	refresh := aggregate.NewRefreshJob(aggregate.RefreshJobConfig{
		Interval:     cfg.AggregateRefreshInterval,
		Lookback:     cfg.InteractionLookback(),
		MaxStaleness: cfg.AggregateMaxStaleness,
		Signals:      calibration.Signals,
		Logger:       logger,
		Metrics:      aggregateMetrics,
		JobMetrics:   jobMetrics,
	}, tracker, st.signals, aggregateStore)

	scorers := scoring.NewDefaultScorers(st.signals, scoring.Options{
		Signals:         calibration.Signals,
		GoalComplements: calibration.GoalComplements,
		Lookback:        cfg.InteractionLookback(),
		Cache:           cache,
	})
	executor := scoring.NewExecutor(scorers,
		scoring.WithConcurrency(cfg.ScoringConcurrency),
		scoring.WithMetrics(scoringMetrics),
		scoring.WithLogger(logger),
	)

	resolver := experiment.NewResolver(st.experiments, st.assignments, calibration.Weights,
		experiment.WithResolverLogger(logger),
		experiment.WithResolverMetrics(experimentMetrics),
	)
	filter := privacy.NewFilter(st.signals, privacy.WithLogger(logger), privacy.WithMetrics(privacyMetrics))

	serviceConfig := matching.Config{
		MaxLimit:           cfg.MaxLimit,
		LargePoolThreshold: cfg.LargePoolThreshold,
		Logger:             logger,
		Metrics:            matchingMetrics,
	}

	var emitter *analytics.Emitter
	if cfg.AnalyticsEnabled {
		sink, err := newAnalyticsSink(cfg, logger)
		if err != nil {
			return nil, err
		}
		emitter = analytics.NewEmitter(sink, analytics.EmitterConfig{
			BufferSize: cfg.AnalyticsBuffer,
			Logger:     logger,
			Metrics:    analyticsMetrics,
			JobMetrics: jobMetrics,
		})
		serviceConfig.Emitter = emitter
	}

	service := matching.NewService(st.signals, filter, resolver, executor, explain.NewGenerator(st.signals), serviceConfig)

	a := &app{
		service:  service,
		refresh:  refresh,
		emitter:  emitter,
		registry: reg,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	var limitStore middleware.RateLimitStore
	if st.redis != nil {
		limitStore = middleware.NewRedisRateLimitStore(st.redis,
			middleware.WithRateLimitMetrics(httpMetrics),
			middleware.WithRateLimitLogger(logger),
		)
	} else {
		a.limiter = middleware.NewInMemoryRateLimitStore()
		limitStore = a.limiter
	}

	// Redis only backs caches and rate limits, both of which fail open.
	database := api.Dependency{Name: "database"}
	if st.db != nil {
		database.Checker = health.NewDBChecker(st.db)
	}
	cacheDep := api.Dependency{Name: "redis", Optional: true}
	if st.redis != nil {
		cacheDep.Checker = health.NewRedisChecker(st.redis)
	}

	a.handler = newRouter(routerConfig{
		Service:     service,
		Health:      api.NewHealthHandlers(logger, database, cacheDep),
		Validator:   auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret),
		LimitStore:  limitStore,
		Limit:       middleware.RateLimitConfig{RequestsPerWindow: cfg.RateLimitRequests, WindowDuration: cfg.RateLimitWindow},
		Registry:    reg,
		HTTPMetrics: httpMetrics,
		Logger:      logger,
	})
	return a, nil
}

func newAnalyticsSink(cfg *config.Config, logger *slog.Logger) (analytics.Sink, error) {
	if !cfg.ArchiveEnabled() {
		return analytics.NewLogSink(logger), nil
	}
	sink, err := analytics.NewS3Sink(analytics.S3Config{
		BucketName:      cfg.R2BucketName,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		Endpoint:        cfg.R2Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics archive: %w", err)
	}
	return sink, nil
}

// routerConfig collects the pieces newRouter mounts.
type routerConfig struct {
	Service     api.RecommendationService
	Health      *api.HealthHandlers
	Validator   middleware.TokenValidator
	LimitStore  middleware.RateLimitStore
	Limit       middleware.RateLimitConfig
	Registry    *prometheus.Registry
	HTTPMetrics *middleware.Metrics
	Logger      *slog.Logger
}

// newRouter builds the handler chain:
// RequestID -> Logging -> Tracing -> HTTPMetrics -> mux.
// Recommendation routes additionally pass Auth -> RateLimiter.
func newRouter(rc routerConfig) http.Handler {
	v1 := http.NewServeMux()
	api.NewRecommendationHandlers(rc.Service).Register(v1)
	protected := middleware.Auth(rc.Validator)(
		middleware.RateLimiter(rc.LimitStore, rc.Limit, middleware.UserKeyFunc(), rc.HTTPMetrics)(v1),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", rc.Health.Health)
	mux.HandleFunc("GET /ready", rc.Health.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(rc.Registry, promhttp.HandlerOpts{Registry: rc.Registry}))
	mux.Handle("/v1/", protected)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			api.WriteError(w, r, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"` + serviceName + `","version":"` + version + `"}`)); err != nil {
			rc.Logger.Error("failed to write response", "error", err)
		}
	})

	var handler http.Handler = mux
	handler = middleware.HTTPMetrics(rc.HTTPMetrics)(handler)
	handler = middleware.Tracing(serviceName)(handler)
	handler = middleware.Logging(rc.Logger)(handler)
	return middleware.RequestID(handler)
}

// start launches the background workers.
func (a *app) start(ctx context.Context) error {
	if err := a.refresh.Start(ctx); err != nil {
		return fmt.Errorf("failed to start aggregate refresh: %w", err)
	}
	if a.emitter != nil {
		if err := a.emitter.Start(ctx); err != nil {
			return fmt.Errorf("failed to start analytics emitter: %w", err)
		}
	}
	if a.limiter != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			ticker := time.NewTicker(rateLimitCleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					a.limiter.Cleanup()
				case <-a.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	return nil
}

// stop halts the workers. The emitter flushes its buffer before returning.
func (a *app) stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
		a.refresh.Stop()
		if a.emitter != nil {
			a.emitter.Stop()
		}
		a.wg.Wait()
	})
}
