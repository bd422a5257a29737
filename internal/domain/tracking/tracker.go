// Package tracking applies observations to the tracked-entity store.
//
// Every mutation is a read-modify-write (Get, aggregate.Merge, Put) run
// under a per-key lock, so concurrent observations of one account never
// lose an update. Failed store calls replay the whole cycle; the merge is
// max-based, which makes a replay harmless.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/axelofwar/be-community-gamification/internal/domain/aggregate"
	"github.com/axelofwar/be-community-gamification/internal/domain/model"
	"github.com/axelofwar/be-community-gamification/pkg/logger"
	"github.com/axelofwar/be-community-gamification/pkg/metrics"
)

// Outcome reports what a tracker operation did to the store.
type Outcome int

const (
	// Unchanged means the stored row already reflected the observation.
	Unchanged Outcome = iota
	// Created means a new row was inserted.
	Created
	// Updated means an existing row was rewritten.
	Updated
	// Removed means an existing row was deleted.
	Removed
	// Absent means there was nothing to delete.
	Absent
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	case Absent:
		return "absent"
	default:
		return "unchanged"
	}
}

// Result is the outcome of one operation and the entity as stored after it.
// Entity is zero for Removed and Absent.
type Result struct {
	Outcome Outcome
	Entity  model.TrackedEntity
}

// Store is the persistence the tracker needs.
type Store interface {
	Get(ctx context.Context, key string) (model.TrackedEntity, bool, error)
	Put(ctx context.Context, e model.TrackedEntity) error
	Delete(ctx context.Context, key string) error
}

// Tracker serializes read-modify-write cycles per key.
type Tracker struct {
	store    Store
	locks    *stripedLocks
	stripes  int
	attempts uint
	delay    time.Duration
	log      logger.Logger
}

// New creates a Tracker over store.
func New(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		stripes:  stripesPerShard,
		attempts: 3,
		delay:    50 * time.Millisecond,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.locks = newStripedLocks(t.stripes)
	return t
}

// Observe merges observed into the entity identified by identity, creating
// it on first sight. The store is written only when the merge changed
// something.
func (t *Tracker) Observe(ctx context.Context, identity model.Identity, observed model.Observed) (Result, error) {
	res, err := retry.DoWithData(
		func() (Result, error) { return t.observe(ctx, identity, observed) },
		t.retryOptions(ctx, "observe", identity.Key)...,
	)
	if err != nil {
		return Result{}, t.fail("observe", err)
	}
	metrics.RecordTrackingOutcome(res.Outcome.String())
	return res, nil
}

func (t *Tracker) observe(ctx context.Context, identity model.Identity, observed model.Observed) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	mu := t.locks.forKey(identity.Key)
	mu.Lock()
	defer mu.Unlock()

	current, found, err := t.store.Get(ctx, identity.Key)
	if err != nil {
		return Result{}, err
	}
	var cur *model.TrackedEntity
	if found {
		cur = &current
	}
	merged, changed, err := aggregate.Merge(cur, observed, identity)
	if err != nil {
		return Result{}, err
	}
	if !changed {
		return Result{Outcome: Unchanged, Entity: merged}, nil
	}
	if err := t.store.Put(ctx, merged); err != nil {
		return Result{}, err
	}
	if found {
		return Result{Outcome: Updated, Entity: merged}, nil
	}
	return Result{Outcome: Created, Entity: merged}, nil
}

// Forget deletes the entity for key if it exists.
func (t *Tracker) Forget(ctx context.Context, key string) (Result, error) {
	if key == "" {
		return Result{}, fmt.Errorf("forget: %w", aggregate.ErrInvalidIdentity)
	}
	res, err := retry.DoWithData(
		func() (Result, error) { return t.forget(ctx, key) },
		t.retryOptions(ctx, "forget", key)...,
	)
	if err != nil {
		return Result{}, t.fail("forget", err)
	}
	metrics.RecordTrackingOutcome(res.Outcome.String())
	return res, nil
}

func (t *Tracker) forget(ctx context.Context, key string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	mu := t.locks.forKey(key)
	mu.Lock()
	defer mu.Unlock()

	_, found, err := t.store.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{Outcome: Absent}, nil
	}
	if err := t.store.Delete(ctx, key); err != nil {
		return Result{}, err
	}
	return Result{Outcome: Removed}, nil
}

func (t *Tracker) retryOptions(ctx context.Context, op, key string) []retry.Option {
	jitter := max(t.delay/2, time.Millisecond)
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(t.attempts),
		retry.Delay(t.delay),
		retry.MaxJitter(jitter),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			metrics.RecordRepositoryRetry()
			t.log.Warn(ctx, "retrying store operation",
				logger.String("op", op),
				logger.String("key", key),
				logger.Int("attempt", int(n)+1),
				logger.Error(err))
		}),
	}
}

// retryable reports whether err may succeed on a replay.
func retryable(err error) bool {
	return !errors.Is(err, aggregate.ErrInvalidIdentity) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (t *Tracker) fail(op string, err error) error {
	if errors.Is(err, aggregate.ErrInvalidIdentity) {
		metrics.RecordErrorByComponent("tracking", "invalid_identity")
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	metrics.RecordErrorByComponent("tracking", op)
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
