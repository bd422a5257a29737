package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/axelofwar/be-community-gamification/internal/domain/model"
)

func observation(id string) model.Observation {
	return model.Observation{
		ID:              id,
		Identity:        model.Identity{Key: "user-" + id, DisplayName: id},
		Metrics:         model.Metrics{Likes: 1, Impressions: 10},
		ProfileImageURL: "https://pbs.twimg.com/profile_images/1/a_400x400.png",
		ObservedAt:      time.Now(),
	}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if !q.Enqueue(ctx, observation("obs1")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.ID != "obs1" || got.Identity.Key != "user-obs1" {
		t.Errorf("unexpected observation %+v", got)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, observation("obs1")) || !q.Enqueue(ctx, observation("obs2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, observation("obs3")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if q.Enqueue(ctx, observation("obs1")) {
		t.Error("expected enqueue to fail on a cancelled context")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	const producers, perProducer = 10, 100

	var consumed sync.Map
	var consumers sync.WaitGroup
	for range 4 {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for o := range q.Dequeue(ctx) {
				if _, dup := consumed.LoadOrStore(o.ID, struct{}{}); dup {
					t.Errorf("observation %s delivered twice", o.ID)
				}
			}
		}()
	}

	var producersWG sync.WaitGroup
	for p := range producers {
		producersWG.Add(1)
		go func() {
			defer producersWG.Done()
			for j := range perProducer {
				o := observation(fmt.Sprintf("obs%d_%d", p, j))
				for !q.Enqueue(ctx, o) {
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}
	producersWG.Wait()
	_ = q.Close()
	consumers.Wait()

	n := 0
	consumed.Range(func(_, _ any) bool { n++; return true })
	if n != producers*perProducer {
		t.Errorf("expected %d observations, got %d", producers*perProducer, n)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, observation("obs1")) || !q.Enqueue(ctx, observation("obs2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, observation("obs3")) {
		t.Error("expected enqueue to fail after closing")
	}

	// Queued observations are still drained after Close.
	var drained []string
	for o := range q.Dequeue(ctx) {
		drained = append(drained, o.ID)
	}
	if len(drained) != 2 || drained[0] != "obs1" || drained[1] != "obs2" {
		t.Errorf("expected [obs1 obs2] drained, got %v", drained)
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}
