package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"DeltaStream/pkg/cache"
)

func TestKeyFormat(t *testing.T) {
	got := Key(DomainUnderlying, "NIFTY", "42")
	if got != "processed:underlying:NIFTY:42" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestMarkThenSeen(t *testing.T) {
	g := New(cache.NewMemoryCache())
	ctx := context.Background()
	key := Key(DomainOptionChain, "NIFTY", "2025-01-30:1700000000")

	seen, err := g.SeenBefore(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Fatalf("fresh key must not be seen")
	}

	first, err := g.MarkSeen(ctx, key, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Fatalf("first mark must report true")
	}

	seen, err = g.SeenBefore(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !seen {
		t.Fatalf("marked key must be seen")
	}
}

func TestMarkSeenExactlyOneWinner(t *testing.T) {
	g := New(cache.NewMemoryCache())
	ctx := context.Background()
	key := Key(DomainUnderlying, "BANKNIFTY", "7")

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := g.MarkSeen(ctx, key, time.Hour)
			if err != nil {
				t.Errorf("mark: %v", err)
				return
			}
			wins <- first
		}()
	}
	wg.Wait()
	close(wins)

	firsts := 0
	for w := range wins {
		if w {
			firsts++
		}
	}
	if firsts != 1 {
		t.Fatalf("expected exactly one first marker, got %d", firsts)
	}
}

type failingStore struct {
	cache.Service
}

var errStoreDown = errors.New("store down")

func (failingStore) Exists(context.Context, ...string) (bool, error) {
	return false, errStoreDown
}

func (failingStore) SetIfAbsent(context.Context, string, interface{}, time.Duration) (bool, error) {
	return false, errStoreDown
}

func TestGuardSurfacesStoreFailure(t *testing.T) {
	g := New(failingStore{})
	ctx := context.Background()

	if _, err := g.SeenBefore(ctx, "processed:underlying:NIFTY:1"); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
	if _, err := g.MarkSeen(ctx, "processed:underlying:NIFTY:1", time.Hour); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
}
