package idempotency

import (
	"context"
	"fmt"
	"time"

	"DeltaStream/pkg/cache"
)

// Domains namespacing idempotency keys per message family.
const (
	DomainUnderlying  = "underlying"
	DomainOptionQuote = "option_quote"
	DomainOptionChain = "option_chain"
)

const keyPrefix = "processed"

// Guard tracks already-processed logical events in the cache store.
// MarkSeen is set-if-not-exists with expiry, so of two racing workers
// exactly one observes itself as the first marker. The record carries no
// payload: existence alone means "already handled".
type Guard struct {
	store cache.Service
}

// New creates a guard backed by the given cache store.
func New(store cache.Service) *Guard {
	return &Guard{store: store}
}

// Key builds the canonical idempotency key: processed:{domain}:{product}:{id}.
func Key(domain, product string, naturalID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, domain, product, naturalID)
}

// SeenBefore reports whether key was already marked. A store failure is
// returned to the caller, which must treat the job as transient rather
// than skip the check.
func (g *Guard) SeenBefore(ctx context.Context, key string) (bool, error) {
	seen, err := g.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("idempotency exists: %w", err)
	}
	return seen, nil
}

// MarkSeen atomically marks key with the given TTL and returns true only
// when this caller created the record.
func (g *Guard) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	first, err := g.store.SetIfAbsent(ctx, key, "1", ttl)
	if err != nil {
		return false, fmt.Errorf("idempotency mark: %w", err)
	}
	return first, nil
}
