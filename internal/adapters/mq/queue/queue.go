// Package queue buffers accepted observations between the HTTP intake and
// the worker pool.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/axelofwar/be-community-gamification/internal/domain/model"
	"github.com/axelofwar/be-community-gamification/pkg/metrics"
)

const defaultQueueCapacity = 100000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an observation. It returns false when the queue is full,
	// closed, or ctx is done; the caller treats that as backpressure.
	Enqueue(ctx context.Context, o model.Observation) bool

	// Dequeue returns the channel consumers read from. It is closed once
	// the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan model.Observation

	// Len returns the current number of queued observations.
	Len(ctx context.Context) int

	// Close stops intake. Already queued observations stay readable.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	items    chan model.Observation
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan model.Observation, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// Enqueue implements Queue.Enqueue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, o model.Observation) bool { //nolint:gocritic // observations travel by value
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	}

	select {
	case q.items <- o:
		metrics.RecordQueueEnqueue()
		q.report()
		return true
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue implements Queue.Dequeue. Every caller shares the same channel,
// so each observation is delivered to exactly one consumer.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan model.Observation {
	return q.items
}

// Len implements Queue.Len.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.report()
	return len(q.items)
}

func (q *InMemoryQueue) report() {
	size := len(q.items)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Close implements Queue.Close. It is safe to call more than once.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
