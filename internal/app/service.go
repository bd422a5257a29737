// Package service wires the enrichment pipeline and exposes the operations
// the HTTP API depends on.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/axelofwar/be-community-gamification/internal/adapters/imagefetch"
	eventqueue "github.com/axelofwar/be-community-gamification/internal/adapters/mq/queue"
	workerpool "github.com/axelofwar/be-community-gamification/internal/adapters/mq/worker"
	"github.com/axelofwar/be-community-gamification/internal/adapters/repository"
	"github.com/axelofwar/be-community-gamification/internal/domain/dedupe"
	"github.com/axelofwar/be-community-gamification/internal/domain/membership"
	"github.com/axelofwar/be-community-gamification/internal/domain/model"
	"github.com/axelofwar/be-community-gamification/internal/domain/similarity"
	"github.com/axelofwar/be-community-gamification/internal/domain/tracking"
	"github.com/axelofwar/be-community-gamification/internal/domain/types"
	"github.com/axelofwar/be-community-gamification/pkg/logger"
	"github.com/axelofwar/be-community-gamification/pkg/metrics"
)

// ErrNoCollections is returned by Start when no reference collection is
// configured.
var ErrNoCollections = errors.New("no reference collections configured")

// Service implements the API dependencies for the leaderboard.
type Service struct {
	mu sync.RWMutex

	// Core components
	store       repository.Store
	deduper     dedupe.Deduper
	queue       eventqueue.Queue
	pool        *workerpool.Pool
	fetcher     workerpool.Fetcher
	resolver    workerpool.Resolver
	tracker     *tracking.Tracker
	collections []membership.Collection

	// Configuration
	workerCount    int
	queueSize      int
	dedupeSize     int
	trackerOptions []tracking.Option

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// New constructs a Service. Components not supplied through options get
// in-memory or default implementations on Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU() * 2,
		queueSize:   100000,
		dedupeSize:  dedupe.DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the pipeline and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if len(s.collections) == 0 {
		return ErrNoCollections
	}

	s.logger.Info(ctx, "starting leaderboard service...")

	if s.store == nil {
		s.store = repository.NewTreapStore(ctx)
		s.logger.Info(ctx, "using in-memory treap store")
	}
	if s.fetcher == nil {
		f, err := imagefetch.New(imagefetch.WithLogger(s.logger.Named("imagefetch")))
		if err != nil {
			return fmt.Errorf("build image fetcher: %w", err)
		}
		s.fetcher = f
	}
	if s.resolver == nil {
		classifier, err := similarity.NewClassifier()
		if err != nil {
			return fmt.Errorf("build classifier: %w", err)
		}
		s.resolver = membership.NewResolver(classifier, membership.WithLogger(s.logger.Named("membership")))
	}

	s.tracker = tracking.New(s.store, append([]tracking.Option{
		tracking.WithLogger(s.logger.Named("tracking")),
	}, s.trackerOptions...)...)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	s.pool = workerpool.NewPool(s.workerCount, s.queue, &workerpool.Processor{
		Fetcher:     s.fetcher,
		Resolver:    s.resolver,
		Tracker:     s.tracker,
		Collections: s.collections,
	})
	s.pool.Start(ctx)

	s.started = true
	s.startedAt = time.Now()
	metrics.UpdateWorkerCount(s.workerCount)
	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("collections", len(s.collections)),
	)
	return nil
}

// Stop drains the queue, then closes the store. Observations still queued
// when ctx expires are dropped.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping leaderboard service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped")
	return errors.Join(errs...)
}

// SeenAndRecord reports whether an observation id was already accepted and
// records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordObservationDuplicate()
	}
	return seen
}

// Unrecord forgets an observation id so it can be submitted again.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the number of remembered observation ids.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue submits an observation for asynchronous processing. It returns
// false on backpressure.
func (s *Service) Enqueue(ctx context.Context, o model.Observation) bool { //nolint:gocritic // observations travel by value
	if !s.queue.Enqueue(ctx, o) {
		return false
	}
	metrics.RecordObservationAccepted()
	s.logger.Debug(ctx, "observation queued",
		logger.String("observation_id", o.ID),
		logger.String("key", o.Identity.Key))
	return true
}

// TopN returns the top n leaderboard rows.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	entries, err := s.store.TopN(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]types.Entry, len(entries))
	for i, e := range entries {
		out[i] = types.NewEntry(e.Rank, e.Entity)
	}
	return out, nil
}

// Rank returns the leaderboard row for key.
func (s *Service) Rank(ctx context.Context, key string) (types.Entry, error) {
	e, err := s.store.Rank(ctx, key)
	if err != nil {
		return types.Entry{}, err
	}
	return types.NewEntry(e.Rank, e.Entity), nil
}

// Entity returns the stored entity for key, or repository.ErrNotFound.
func (s *Service) Entity(ctx context.Context, key string) (types.Entity, error) {
	e, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return types.Entity{}, err
	}
	if !ok {
		return types.Entity{}, repository.ErrNotFound
	}
	return types.NewEntity(e), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	cols := make([]map[string]any, len(s.collections))
	for i, c := range s.collections {
		cols[i] = map[string]any{
			"name":       c.Name,
			"threshold":  c.Threshold,
			"references": len(c.References),
		}
	}
	stats["collections"] = cols

	if s.started {
		queueLen := s.queue.Len(ctx)
		tracked := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["trackedEntities"] = tracked
		stats["dedupeEntries"] = s.deduper.Size()
		stats["processed"] = s.pool.Processed()
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateTrackedEntities(tracked)
		metrics.UpdateWorkerCount(s.workerCount)
	}
	return stats
}
