package mirror

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestCache(t *testing.T, ttl time.Duration, capacity int) (*Cache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	return NewWithClient(client, ttl, capacity), s
}

func TestRoundTrip(t *testing.T) {
	cache, s := setupTestCache(t, time.Hour, 10)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	type verse struct {
		Reference string `json:"reference"`
		Text      string `json:"text"`
	}

	if err := cache.Set(ctx, "verse:esv:Hebrews 11:1", verse{Reference: "Hebrews 11:1", Text: "Now faith is..."}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got verse
	hit, err := cache.Get(ctx, "verse:esv:Hebrews 11:1", &got)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !hit {
		t.Fatal("expected a cache hit")
	}
	if got.Text != "Now faith is..." {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestGetMiss(t *testing.T) {
	cache, s := setupTestCache(t, time.Hour, 10)
	defer cache.Close()
	defer s.Close()

	var target map[string]string
	hit, err := cache.Get(context.Background(), "verse:esv:unknown", &target)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if hit {
		t.Error("expected a miss")
	}
}

func TestExpiredEntryIsMissAndRemovedFromIndex(t *testing.T) {
	cache, s := setupTestCache(t, time.Minute, 10)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	if err := cache.Set(ctx, "devotion:2024-04-25", map[string]string{"date": "2024-04-25"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	s.FastForward(2 * time.Minute)

	var target map[string]string
	hit, err := cache.Get(ctx, "devotion:2024-04-25", &target)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if hit {
		t.Error("expired entry should be a miss")
	}

	// The read should have dropped the key from the write-time index,
	// so a non-forced sweep finds nothing left to do.
	removed, err := cache.Sweep(ctx, false)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("index should already be clean, sweep removed %d", removed)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	cache, s := setupTestCache(t, time.Minute, 10)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := cache.Set(ctx, fmt.Sprintf("verse:esv:ref-%d", i), i); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	s.FastForward(2 * time.Minute)

	removed, err := cache.Sweep(ctx, false)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 expired index entries removed, got %d", removed)
	}
}

func TestForcedSweepDropsEverything(t *testing.T) {
	cache, s := setupTestCache(t, time.Hour, 10)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := cache.Set(ctx, fmt.Sprintf("verse:esv:ref-%d", i), i); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if _, err := cache.IncrErrorCount(ctx); err != nil {
		t.Fatalf("IncrErrorCount failed: %v", err)
	}

	removed, err := cache.Sweep(ctx, true)
	if err != nil {
		t.Fatalf("forced Sweep failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 entries removed, got %d", removed)
	}

	var target int
	hit, err := cache.Get(ctx, "verse:esv:ref-0", &target)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if hit {
		t.Error("forced sweep should have removed all entries")
	}

	// Counter resets with the forced sweep.
	count, err := cache.IncrErrorCount(ctx)
	if err != nil {
		t.Fatalf("IncrErrorCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected counter restart at 1, got %d", count)
	}
}

func TestCapacityBoundEvictsOldest(t *testing.T) {
	cache, s := setupTestCache(t, time.Hour, 3)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := cache.Set(ctx, fmt.Sprintf("verse:esv:ref-%d", i), i); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	var target int
	for i := 0; i < 2; i++ {
		hit, err := cache.Get(ctx, fmt.Sprintf("verse:esv:ref-%d", i), &target)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if hit {
			t.Errorf("oldest entry ref-%d should have been evicted", i)
		}
	}
	for i := 2; i < 5; i++ {
		hit, err := cache.Get(ctx, fmt.Sprintf("verse:esv:ref-%d", i), &target)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !hit {
			t.Errorf("entry ref-%d should have survived the trim", i)
		}
	}
}

func TestLastWriteWins(t *testing.T) {
	cache, s := setupTestCache(t, time.Hour, 10)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	if err := cache.Set(ctx, "journal:u1:2024-05-01", "first"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := cache.Set(ctx, "journal:u1:2024-05-01", "second"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got string
	if _, err := cache.Get(ctx, "journal:u1:2024-05-01", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "second" {
		t.Errorf("expected last write to win, got %q", got)
	}
}
