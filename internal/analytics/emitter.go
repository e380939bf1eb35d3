package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/matchcore/internal/jobs"
)

// Defaults for EmitterConfig.
const (
	DefaultBufferSize    = 1024
	DefaultBatchSize     = 100
	DefaultFlushInterval = 10 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
)

// JobType labels flushes in the shared background job metrics.
const JobType = jobs.JobTypeAnalyticsFlush

// Sink receives batches of events.
type Sink interface {
	Write(ctx context.Context, events []Event) error
}

// EmitterConfig configures an Emitter.
type EmitterConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration

	Logger     *slog.Logger
	Metrics    *Metrics
	JobMetrics *jobs.Metrics // may be nil
}

// Emitter buffers events and writes them to a Sink in batches from a single
// background worker.
type Emitter struct {
	config EmitterConfig
	sink   Sink
	events chan Event
	closed atomic.Bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewEmitter creates an Emitter. Call Start to begin flushing.
func NewEmitter(sink Sink, config EmitterConfig) *Emitter {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Emitter{
		config: config,
		sink:   sink,
		events: make(chan Event, config.BufferSize),
	}
}

// Emit enqueues an event without blocking. It reports false when the event was dropped.
func (e *Emitter) Emit(ev Event) bool {
	if e.closed.Load() {
		e.drop()
		return false
	}
	select {
	case e.events <- ev:
		if e.config.Metrics != nil {
			e.config.Metrics.emitted.Inc()
		}
		return true
	default:
		e.drop()
		return false
	}
}

func (e *Emitter) drop() {
	if e.config.Metrics != nil {
		e.config.Metrics.dropped.Inc()
	}
}

// Start begins the background flush worker.
func (e *Emitter) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	go e.run(ctx)
	return nil
}

// Stop stops accepting events, flushes what is buffered and waits for the worker.
func (e *Emitter) Stop() {
	e.closed.Store(true)

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	close(stopCh)
	<-doneCh

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

func (e *Emitter) run(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, e.config.BatchSize)
	for {
		select {
		case ev := <-e.events:
			batch = append(batch, ev)
			if len(batch) >= e.config.BatchSize {
				batch = e.flush(batch)
			}
		case <-ticker.C:
			batch = e.flush(batch)
		case <-ctx.Done():
			e.drain(batch)
			return
		case <-e.stopCh:
			e.drain(batch)
			return
		}
	}
}

// drain flushes the pending batch and everything still buffered.
func (e *Emitter) drain(batch []Event) {
	for {
		select {
		case ev := <-e.events:
			batch = append(batch, ev)
			if len(batch) >= e.config.BatchSize {
				batch = e.flush(batch)
			}
		default:
			e.flush(batch)
			return
		}
	}
}

// flush writes batch and returns it emptied for reuse. A failed batch is dropped.
func (e *Emitter) flush(batch []Event) []Event {
	if len(batch) == 0 {
		return batch
	}
	start := time.Now()
	// detached: shutdown flushes run after the worker context is cancelled
	ctx, cancel := context.WithTimeout(context.Background(), e.config.WriteTimeout)
	defer cancel()

	out := make([]Event, len(batch))
	copy(out, batch)

	status := jobs.StatusSuccess
	if err := e.sink.Write(ctx, out); err != nil {
		status = jobs.StatusFailure
		e.config.Logger.Warn("failed to write analytics batch", "events", len(out), "error", err)
		if e.config.Metrics != nil {
			e.config.Metrics.dropped.Add(float64(len(out)))
		}
		e.config.JobMetrics.IncJobErrors(JobType, jobs.ErrorClass(err, "sink_error"))
	}
	if e.config.Metrics != nil {
		e.config.Metrics.batches.WithLabelValues(status).Inc()
	}
	e.config.JobMetrics.ObserveRun(JobType, start, status == jobs.StatusSuccess)
	return batch[:0]
}
