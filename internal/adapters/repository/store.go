// Package repository persists tracked entities and serves the leaderboard
// read model.
package repository

import (
	"context"
	"fmt"

	"github.com/axelofwar/be-community-gamification/internal/domain/model"
)

// Entry is a ranked leaderboard row.
type Entry struct {
	Rank   int
	Entity model.TrackedEntity
}

// Store owns the persisted tracked entities. Callers serialize mutations
// per key; the store itself offers no multi-key transactions.
type Store interface {
	// Get returns the entity for key and whether it exists.
	Get(ctx context.Context, key string) (model.TrackedEntity, bool, error)
	// Put upserts e by key.
	Put(ctx context.Context, e model.TrackedEntity) error
	// Delete removes key. Deleting an unknown key is not an error.
	Delete(ctx context.Context, key string) error

	// Rank returns the dense impressions rank of key, or ErrNotFound.
	Rank(ctx context.Context, key string) (Entry, error)
	// TopN returns up to n entries by impressions desc, then key asc.
	TopN(ctx context.Context, n int) ([]Entry, error)
	// Count returns the number of tracked entities.
	Count(ctx context.Context) int

	Close() error
}

// DriverMemory selects the in-memory TreapStore.
const DriverMemory = "memory"

// Open builds the Store for driver. table is ignored by the memory driver.
func Open(ctx context.Context, driver, dsn, table string, opts ...Option) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewTreapStore(ctx, opts...), nil
	case DriverPostgres, DriverSQLite:
		db, err := OpenDB(driver, dsn)
		if err != nil {
			return nil, err
		}
		return NewGormStore(ctx, db, WithTable(table))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
}

// denseRanks assigns ranks to entries already ordered by impressions desc,
// starting at first. Equal impressions share a rank; the next distinct
// value takes the following rank.
func denseRanks(entries []Entry, first int) {
	rank := first
	for i := range entries {
		if i > 0 && entries[i].Entity.Metrics.Impressions != entries[i-1].Entity.Metrics.Impressions {
			rank++
		}
		entries[i].Rank = rank
	}
}
