package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/axelofwar/be-community-gamification/internal/domain/model"
)

func entity(key string, impressions int64) model.TrackedEntity {
	return model.TrackedEntity{
		Key:             key,
		DisplayName:     "name-" + key,
		Metrics:         model.Metrics{Likes: impressions / 10, Retweets: 1, Replies: 2, Impressions: impressions},
		ProfileImageURL: "https://pbs.twimg.com/profile_images/" + key + "_400x400.jpg",
		BioDescription:  model.Unknown,
		BioLink:         model.Unknown,
	}
}

func keys(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Entity.Key
	}
	return out
}

func ranks(entries []Entry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Rank
	}
	return out
}

// runStoreContract exercises the behaviour every Store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Get(ctx, "nobody")
		if err != nil || ok {
			t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)
		want := entity("abc", 40)
		if err := s.Put(ctx, want); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, ok, err := s.Get(ctx, "abc")
		if err != nil || !ok {
			t.Fatalf("get: ok=%v err=%v", ok, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("entity mismatch (-want +got):\n%s", diff)
		}
		if n := s.Count(ctx); n != 1 {
			t.Errorf("expected count 1, got %d", n)
		}
	})

	t.Run("put upserts", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(ctx, entity("abc", 40))
		updated := entity("abc", 90)
		updated.BioLink = "https://example.com"
		if err := s.Put(ctx, updated); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, _, _ := s.Get(ctx, "abc")
		if diff := cmp.Diff(updated, got); diff != "" {
			t.Errorf("entity mismatch (-want +got):\n%s", diff)
		}
		if n := s.Count(ctx); n != 1 {
			t.Errorf("expected count 1 after upsert, got %d", n)
		}
	})

	t.Run("put rejects empty key", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, entity(" ", 1)); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(ctx, entity("abc", 40))
		if err := s.Delete(ctx, "abc"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, ok, _ := s.Get(ctx, "abc"); ok {
			t.Error("expected entity to be gone")
		}
		if err := s.Delete(ctx, "abc"); err != nil {
			t.Errorf("deleting an absent key should succeed, got %v", err)
		}
		if _, err := s.Rank(ctx, "abc"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("top n ordering and dense ranks", func(t *testing.T) {
		s := newStore(t)
		for _, e := range []model.TrackedEntity{
			entity("d", 100), entity("b", 500), entity("a", 500), entity("c", 300), entity("e", 0),
		} {
			if err := s.Put(ctx, e); err != nil {
				t.Fatalf("put %s: %v", e.Key, err)
			}
		}
		top, err := s.TopN(ctx, 10)
		if err != nil {
			t.Fatalf("top: %v", err)
		}
		if diff := cmp.Diff([]string{"a", "b", "c", "d", "e"}, keys(top)); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]int{1, 1, 2, 3, 4}, ranks(top)); diff != "" {
			t.Errorf("rank mismatch (-want +got):\n%s", diff)
		}

		limited, _ := s.TopN(ctx, 2)
		if len(limited) != 2 || limited[1].Entity.Key != "b" {
			t.Errorf("expected [a b], got %v", keys(limited))
		}

		for key, want := range map[string]int{"a": 1, "b": 1, "c": 2, "d": 3, "e": 4} {
			got, err := s.Rank(ctx, key)
			if err != nil {
				t.Fatalf("rank %s: %v", key, err)
			}
			if got.Rank != want {
				t.Errorf("rank %s: expected %d, got %d", key, want, got.Rank)
			}
		}
	})

	t.Run("rank follows updates and deletes", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(ctx, entity("a", 10))
		_ = s.Put(ctx, entity("b", 20))
		_ = s.Put(ctx, entity("c", 30))
		_ = s.Put(ctx, entity("a", 40))
		if got, _ := s.Rank(ctx, "a"); got.Rank != 1 {
			t.Errorf("expected a at rank 1 after raise, got %d", got.Rank)
		}
		_ = s.Delete(ctx, "c")
		if got, _ := s.Rank(ctx, "b"); got.Rank != 2 {
			t.Errorf("expected b at rank 2 after delete, got %d", got.Rank)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.TopN(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("expected ErrInvalidLimit, got %v", err)
		}
	})

	t.Run("many entities", func(t *testing.T) {
		s := newStore(t)
		for i := range 200 {
			if err := s.Put(ctx, entity(fmt.Sprintf("user-%03d", i), int64(i%50))); err != nil {
				t.Fatalf("put: %v", err)
			}
		}
		top, _ := s.TopN(ctx, 200)
		for i := 1; i < len(top); i++ {
			prev, cur := top[i-1].Entity, top[i].Entity
			if prev.Metrics.Impressions < cur.Metrics.Impressions ||
				(prev.Metrics.Impressions == cur.Metrics.Impressions && prev.Key > cur.Key) {
				t.Fatalf("out of order at %d: %s(%d) before %s(%d)", i, prev.Key, prev.Metrics.Impressions, cur.Key, cur.Metrics.Impressions)
			}
		}
		if top[len(top)-1].Rank != 50 {
			t.Errorf("expected last dense rank 50, got %d", top[len(top)-1].Rank)
		}
	})
}
