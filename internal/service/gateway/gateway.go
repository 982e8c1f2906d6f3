package gateway

import (
	"context"

	"DeltaStream/internal/domain/repository"
	"DeltaStream/pkg/cache"
)

// Gateway bundles the long-lived I/O handles every job works through.
// Built once at startup and injected; jobs never open connections.
type Gateway struct {
	Ticks     repository.TickStore
	Quotes    repository.QuoteStore
	Chains    repository.ChainStore
	Cache     cache.Service
	Publisher repository.EnrichedPublisher
}

// New assembles a gateway from already-connected resources.
func New(ticks repository.TickStore, quotes repository.QuoteStore, chains repository.ChainStore, c cache.Service, pub repository.EnrichedPublisher) *Gateway {
	return &Gateway{
		Ticks:     ticks,
		Quotes:    quotes,
		Chains:    chains,
		Cache:     c,
		Publisher: pub,
	}
}

// Health pings every durable backend. Cache health already rides on the
// same Redis connection the queue uses.
func (g *Gateway) Health(ctx context.Context) error {
	if err := g.Ticks.Health(ctx); err != nil {
		return err
	}
	if err := g.Quotes.Health(ctx); err != nil {
		return err
	}
	return g.Chains.Health(ctx)
}
