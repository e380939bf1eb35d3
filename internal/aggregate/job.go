package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/onnwee/matchcore/internal/jobs"
	"github.com/onnwee/matchcore/internal/ranking"
	"github.com/onnwee/matchcore/internal/scoring"
	"github.com/onnwee/matchcore/internal/signal"
)

// JobType labels refresh cycles in the shared background job metrics.
const JobType = jobs.JobTypeAggregateRefresh

// DefaultRefreshInterval is the default interval between refresh cycles.
const DefaultRefreshInterval = 5 * time.Minute

// DefaultRefreshTimeout is the default timeout for a single refresh cycle.
const DefaultRefreshTimeout = 30 * time.Second

// RefreshJobConfig configures the aggregate refresh job.
type RefreshJobConfig struct {
	// Interval is the duration between refresh cycles.
	Interval time.Duration
	// Timeout for each refresh cycle.
	Timeout time.Duration
	// Lookback bounds which events contribute to an entry.
	Lookback time.Duration
	// MaxStaleness is the age past which entries are evicted from stores
	// that implement Evictor.
	MaxStaleness time.Duration
	// Signals supplies base weights and half-lives.
	Signals ranking.SignalTable

	Logger     *slog.Logger
	Metrics    *Metrics
	JobMetrics *jobs.Metrics // may be nil

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// RefreshJob periodically recomputes cached scores for dirty pairs.
type RefreshJob struct {
	config  RefreshJobConfig
	tracker *DirtyTracker
	events  signal.InteractionReader
	store   Store

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRefreshJob creates a new aggregate refresh job.
func NewRefreshJob(config RefreshJobConfig, tracker *DirtyTracker, events signal.InteractionReader, store Store) *RefreshJob {
	if config.Interval == 0 {
		config.Interval = DefaultRefreshInterval
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultRefreshTimeout
	}
	if config.Lookback == 0 {
		config.Lookback = scoring.DefaultLookback
	}
	if config.MaxStaleness == 0 {
		config.MaxStaleness = DefaultMaxStaleness
	}
	if config.Signals == nil {
		config.Signals = ranking.DefaultSignalTable()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &RefreshJob{
		config:  config,
		tracker: tracker,
		events:  events,
		store:   store,
	}
}

// Start begins the periodic refresh job.
// Returns immediately; the job runs in a background goroutine.
func (j *RefreshJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the refresh job to stop and waits for it to finish.
func (j *RefreshJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *RefreshJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *RefreshJob) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("aggregate refresh job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("aggregate refresh job stopping due to stop signal")
			return
		case <-ticker.C:
			j.refreshDirtyPairs(ctx)
		}
	}
}

// RefreshNow refreshes all dirty pairs without waiting for the ticker.
func (j *RefreshJob) RefreshNow(ctx context.Context) {
	j.refreshDirtyPairs(ctx)
}

func (j *RefreshJob) refreshDirtyPairs(parentCtx context.Context) {
	j.evictStale()

	pairs := j.tracker.DirtyPairs()
	if j.config.Metrics != nil {
		j.config.Metrics.SetDirtyPairs(len(pairs))
	}
	if len(pairs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	start := time.Now()
	var refreshed int
	var deltaSum float64
	var deltaCount int

	j.config.Logger.Info("refreshing interaction aggregates", "dirty_count", len(pairs))

	for i, p := range pairs {
		if ctx.Err() != nil {
			j.config.Logger.Error("aggregate refresh timeout exceeded",
				"processed", i,
				"total", len(pairs),
				"timeout", j.config.Timeout)
			j.recordError("timeout")
			j.finish(start, refreshed, false)
			return
		}

		var previous *Entry
		if prev, err := j.store.Get(ctx, p.ActorID, p.TargetID); err == nil {
			previous = prev
		}

		entry, err := j.refreshPair(ctx, p)
		if err != nil {
			j.config.Logger.Error("failed to refresh interaction aggregate",
				"actor_id", p.ActorID,
				"target_id", p.TargetID,
				"error", err)
			j.recordError(jobs.ErrorClass(err, "refresh_error"))
			continue
		}

		if previous != nil && entry != nil {
			deltaSum += math.Abs(entry.Pulse - previous.Pulse)
			deltaCount++
		}
		j.tracker.ClearDirty(p)
		refreshed++
	}

	avgDelta := 0.0
	if deltaCount > 0 {
		avgDelta = deltaSum / float64(deltaCount)
	}
	j.finish(start, refreshed, refreshed == len(pairs))

	j.config.Logger.Info("aggregate refresh completed",
		"duration_seconds", time.Since(start).Seconds(),
		"pairs_refreshed", refreshed,
		"pairs_failed", len(pairs)-refreshed,
		"avg_score_delta", avgDelta)
}

// evictStale sweeps entries older than MaxStaleness. Lookups already ignore them.
func (j *RefreshJob) evictStale() {
	ev, ok := j.store.(Evictor)
	if !ok {
		return
	}
	if n := ev.Evict(j.config.Now().Add(-j.config.MaxStaleness)); n > 0 {
		j.config.Logger.Debug("evicted stale interaction aggregates", "count", n)
	}
}

// refreshPair recomputes and stores the entry for p. Pairs without events in
// the lookback window are not stored, and any previous entry is removed, so
// the scorer computes them from the event log. It returns nil in that case.
func (j *RefreshJob) refreshPair(ctx context.Context, p Pair) (*Entry, error) {
	now := j.config.Now()
	events, err := j.events.ListInteractions(ctx, p.ActorID, p.TargetID, now.Add(-j.config.Lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	if len(events) == 0 {
		if err := j.store.Delete(ctx, p.ActorID, p.TargetID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	entry := &Entry{
		ActorID:    p.ActorID,
		TargetID:   p.TargetID,
		Pulse:      scoring.InteractionScore(events, j.config.Signals, signal.ContextPulse, now),
		Zone:       scoring.InteractionScore(events, j.config.Signals, signal.ContextZone, now),
		EventCount: len(events),
		ComputedAt: now,
	}
	if err := j.store.Save(ctx, *entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (j *RefreshJob) recordError(errorType string) {
	if j.config.Metrics != nil {
		j.config.Metrics.IncRefreshErrors()
	}
	j.config.JobMetrics.IncJobErrors(JobType, errorType)
}

func (j *RefreshJob) finish(start time.Time, refreshed int, ok bool) {
	if j.config.Metrics != nil {
		j.config.Metrics.IncRefreshTotal()
		j.config.Metrics.ObserveRefreshDuration(time.Since(start).Seconds())
		j.config.Metrics.SetLastRefresh(float64(time.Now().Unix()), refreshed)
		j.config.Metrics.SetDirtyPairs(j.tracker.DirtyCount())
	}
	j.config.JobMetrics.ObserveRun(JobType, start, ok)
}
