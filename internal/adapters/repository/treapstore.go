package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axelofwar/be-community-gamification/internal/domain/model"
	"github.com/axelofwar/be-community-gamification/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: impressions DESC, then key ASC (deterministic). A second treap
// holds each distinct impressions value once so a dense rank is the number
// of larger values plus one, in O(log n).

type rankKey struct {
	impressions int64
	key         string
}

func rankLess(a, b rankKey) bool {
	if a.impressions != b.impressions {
		return a.impressions > b.impressions
	}
	return a.key < b.key
}

func levelLess(a, b int64) bool { return a > b }

// Snapshot is an immutable view of the leading entries, republished
// periodically for cheap reads.
type Snapshot struct {
	TopCache    []Entry
	Count       int
	PublishedAt time.Time
}

// TreapStore keeps every tracked entity in memory.
type TreapStore struct {
	mu        sync.RWMutex
	byKey     map[string]model.TrackedEntity
	order     treap[rankKey]
	levels    treap[int64]
	levelRefs map[int64]int

	snapshotInterval      time.Duration
	topCacheSize          int
	metricsUpdateInterval time.Duration

	snapshot atomic.Pointer[Snapshot]

	wg        sync.WaitGroup
	stopChan  chan struct{}
	closeOnce sync.Once
}

// NewTreapStore constructs a treap store and starts its background
// snapshot and metrics loops, which stop on ctx cancellation or Close.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		byKey:                 make(map[string]model.TrackedEntity),
		order:                 treap[rankKey]{less: rankLess},
		levels:                treap[int64]{less: levelLess},
		levelRefs:             make(map[int64]int),
		snapshotInterval:      time.Second,
		topCacheSize:          100,
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.snapshot.Store(&Snapshot{PublishedAt: time.Now()})
	s.loop(ctx, s.snapshotInterval, s.publishSnapshot)
	s.loop(ctx, s.metricsUpdateInterval, s.updateMetrics)
	return s
}

func (s *TreapStore) loop(ctx context.Context, every time.Duration, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// Close stops the background loops.
func (s *TreapStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Get implements Store.Get.
func (s *TreapStore) Get(_ context.Context, key string) (model.TrackedEntity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byKey[key]
	return e, ok, nil
}

// Put implements Store.Put in O(log n) expected time.
func (s *TreapStore) Put(_ context.Context, e model.TrackedEntity) error { //nolint:gocritic // entity is stored by value
	if strings.TrimSpace(e.Key) == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byKey[e.Key]; ok {
		if old.Metrics.Impressions == e.Metrics.Impressions {
			s.byKey[e.Key] = e
			return nil
		}
		s.unlink(old)
	}
	s.byKey[e.Key] = e
	s.order.insert(rankKey{impressions: e.Metrics.Impressions, key: e.Key})
	if s.levelRefs[e.Metrics.Impressions] == 0 {
		s.levels.insert(e.Metrics.Impressions)
	}
	s.levelRefs[e.Metrics.Impressions]++
	return nil
}

// Delete implements Store.Delete.
func (s *TreapStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byKey[key]; ok {
		s.unlink(old)
		delete(s.byKey, key)
	}
	return nil
}

// unlink removes e from both treaps. Caller holds s.mu.
func (s *TreapStore) unlink(e model.TrackedEntity) { //nolint:gocritic // entity is read by value
	s.order.remove(rankKey{impressions: e.Metrics.Impressions, key: e.Key})
	s.levelRefs[e.Metrics.Impressions]--
	if s.levelRefs[e.Metrics.Impressions] <= 0 {
		delete(s.levelRefs, e.Metrics.Impressions)
		s.levels.remove(e.Metrics.Impressions)
	}
}

// Rank implements Store.Rank in O(log n).
func (s *TreapStore) Rank(_ context.Context, key string) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byKey[key]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	return Entry{Rank: s.levels.countBefore(e.Metrics.Impressions) + 1, Entity: e}, nil
}

// TopN implements Store.TopN.
func (s *TreapStore) TopN(_ context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectTopN(n), nil
}

// collectTopN walks the order treap. Caller holds s.mu.
func (s *TreapStore) collectTopN(n int) []Entry {
	out := make([]Entry, 0, min(n, len(s.byKey)))
	s.order.walk(func(k rankKey) bool {
		out = append(out, Entry{Entity: s.byKey[k.key]})
		return len(out) < n
	})
	denseRanks(out, 1)
	return out
}

// Count implements Store.Count.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

// Snapshot returns the most recently published snapshot.
func (s *TreapStore) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

func (s *TreapStore) publishSnapshot() {
	start := time.Now()
	s.mu.RLock()
	snap := &Snapshot{TopCache: s.collectTopN(s.topCacheSize), Count: len(s.byKey), PublishedAt: start}
	s.mu.RUnlock()
	s.snapshot.Store(snap)

	ms := float64(time.Since(start).Nanoseconds()) / 1e6
	metrics.RecordRepositorySnapshotRebuildDuration(ms)
	metrics.UpdateRepositorySnapshotLastDurationMs(ms)
	metrics.UpdateRepositorySnapshotLastUnix(float64(start.Unix()))
	metrics.IncrementRepositorySnapshotCount()
}

func (s *TreapStore) updateMetrics() {
	count := s.Count(context.Background())
	metrics.UpdateRepositoryRecordsTotal(count)
	metrics.UpdateTrackedEntities(count)
}
