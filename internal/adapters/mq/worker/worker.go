// Package worker runs the enrichment pipeline for queued observations.
package worker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axelofwar/be-community-gamification/internal/domain/membership"
	"github.com/axelofwar/be-community-gamification/internal/domain/model"
	"github.com/axelofwar/be-community-gamification/internal/domain/tracking"
	"github.com/axelofwar/be-community-gamification/pkg/logger"
	"github.com/axelofwar/be-community-gamification/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2
	metricsUpdateInterval   = 5 * time.Second
)

// ErrSkipped marks an observation whose membership could not be decided.
// Nothing is written for it.
var ErrSkipped = errors.New("observation skipped")

// Fetcher downloads a profile image as grayscale.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*image.Gray, error)
}

// Resolver decides collection membership for a candidate image.
type Resolver interface {
	Resolve(ctx context.Context, key string, candidate *image.Gray, collections []membership.Collection) (membership.Decision, error)
}

// Tracker applies decisions to the tracked-entity store.
type Tracker interface {
	Observe(ctx context.Context, identity model.Identity, observed model.Observed) (tracking.Result, error)
	Forget(ctx context.Context, key string) (tracking.Result, error)
}

// Queue defines how workers receive observations.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Observation
}

// Processor runs fetch, resolve and track for one observation.
type Processor struct {
	Fetcher     Fetcher
	Resolver    Resolver
	Tracker     Tracker
	Collections []membership.Collection
}

// Process handles one observation. A member is merged into the store; a
// confirmed non-member is removed from it. When the image cannot be fetched
// or every reference failed, the stored row is left alone and the error
// wraps ErrSkipped.
func (p *Processor) Process(ctx context.Context, o model.Observation) (tracking.Result, error) { //nolint:gocritic // observations travel by value
	img, err := p.Fetcher.Fetch(ctx, o.ProfileImageURL)
	if err != nil {
		metrics.RecordErrorByComponent("worker", "fetch")
		return tracking.Result{}, fmt.Errorf("%w: fetch profile image for %s: %w", ErrSkipped, o.Identity.Key, err)
	}

	decision, err := p.Resolver.Resolve(ctx, o.Identity.Key, img, p.Collections)
	if errors.Is(err, membership.ErrInconclusive) {
		metrics.RecordErrorByComponent("worker", "inconclusive")
		return tracking.Result{}, fmt.Errorf("%w: %s: %w", ErrSkipped, o.Identity.Key, err)
	}
	if err != nil {
		metrics.RecordErrorByComponent("worker", "resolve")
		return tracking.Result{}, fmt.Errorf("resolve %s: %w", o.Identity.Key, err)
	}

	if decision.Matched {
		res, err := p.Tracker.Observe(ctx, o.Identity, o.Observed())
		if err != nil {
			metrics.RecordErrorByComponent("worker", "observe")
			return tracking.Result{}, fmt.Errorf("observe %s: %w", o.Identity.Key, err)
		}
		return res, nil
	}
	res, err := p.Tracker.Forget(ctx, o.Identity.Key)
	if err != nil {
		metrics.RecordErrorByComponent("worker", "forget")
		return tracking.Result{}, fmt.Errorf("forget %s: %w", o.Identity.Key, err)
	}
	return res, nil
}

// Worker processes observations until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker after the observation in flight.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker over a Queue and a Processor.
type InMemoryWorker struct {
	queue     Queue
	processor *Processor
	name      string
	onDone    func()

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, processor *Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		processor: processor,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run implements Worker.Run.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case o, ok := <-items:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			w.handle(ctx, o)
		}
	}
}

func (w *InMemoryWorker) handle(ctx context.Context, o model.Observation) { //nolint:gocritic // observations travel by value
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
		if w.onDone != nil {
			w.onDone()
		}
	}()

	res, err := w.processor.Process(ctx, o)
	switch {
	case errors.Is(err, ErrSkipped):
		metrics.RecordErrorByType("skipped", "low")
		w.logger.Warn(ctx, "observation skipped",
			logger.String("observation_id", o.ID),
			logger.String("key", o.Identity.Key),
			logger.Error(err))
	case err != nil:
		metrics.RecordWorkerError()
		metrics.RecordErrorByType("processing_error", "high")
		w.logger.Error(ctx, "observation failed",
			logger.String("observation_id", o.ID),
			logger.String("key", o.Identity.Key),
			logger.Error(err))
	default:
		metrics.RecordObservationProcessed()
		w.logger.Debug(ctx, "observation processed",
			logger.String("observation_id", o.ID),
			logger.String("key", o.Identity.Key),
			logger.String("outcome", res.Outcome.String()))
	}
}

// Shutdown implements Worker.Shutdown. It is safe to call more than once.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	started   atomic.Bool
	stop      chan struct{}
	stopOnce  sync.Once
	processed atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers. A non-positive count
// defaults to twice the number of CPUs.
func NewPool(workerCount int, queue Queue, processor *Processor) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		stop:    make(chan struct{}),
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range workerCount {
		p.workers[i] = NewInMemoryWorker(queue, processor,
			WithName("worker-"+strconv.Itoa(i)),
			withOnDone(func() { p.processed.Add(1) }),
		)
	}

	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0.0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns how many observations the pool has handled.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start starts all workers in the pool. Workers keep running after ctx is
// canceled; they stop only through Shutdown, so queued observations are
// drained rather than dropped.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	for _, w := range p.workers {
		go w.Run(runCtx)
	}
	go p.updateMetrics(runCtx)
}

func (p *Pool) cancelRun() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Pool) updateMetrics(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	last, lastAt := p.processed.Load(), time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case now := <-ticker.C:
			n := p.processed.Load()
			if secs := now.Sub(lastAt).Seconds(); secs > 0 {
				metrics.UpdateWorkerMessagesPerSecond(float64(n-last) / secs)
			}
			last, lastAt = n, now
		}
	}
}

// Shutdown closes the queue and lets the workers drain it. If ctx expires
// first, the workers are stopped after their current observation and the
// remaining items are dropped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	defer p.stopOnce.Do(func() { close(p.stop) })
	if !p.started.Load() {
		return nil
	}
	defer p.cancelRun()

	var errs []error
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			p.cancelRun()
			if err := w.Shutdown(context.Background()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	if ctx.Err() != nil {
		return fmt.Errorf("worker pool drain: %w", ctx.Err())
	}
	return errors.Join(errs...)
}
