package repository

import (
	"context"
	"time"

	"DeltaStream/internal/domain/models"
)

// TickStore is the durable, append-only home of underlying ticks, keyed
// by (product, sequence). Ticks stay the source of truth for OHLC.
type TickStore interface {
	Store(ctx context.Context, t *models.Tick) error
	// QueryRange returns ticks for product within [from, to].
	QueryRange(ctx context.Context, product string, from, to time.Time) ([]models.Tick, error)
	Health(ctx context.Context) error
}

// QuoteStore persists raw option quotes and serves the recent window
// the volatility surface is built from.
type QuoteStore interface {
	Store(ctx context.Context, q *models.OptionQuote) error
	QueryRecent(ctx context.Context, product string, since time.Time) ([]models.OptionQuote, error)
	Health(ctx context.Context) error
}

// ChainStore appends enriched chains, keyed by (product, expiry,
// timestamp), with range queries over product+timestamp for audit.
type ChainStore interface {
	Store(ctx context.Context, c *models.EnrichedChain) error
	Query(ctx context.Context, product string, from, to time.Time, limit int) ([]models.EnrichedChain, error)
	Health(ctx context.Context) error
}

// EnrichedPublisher republishes enriched events on the outbound channels.
type EnrichedPublisher interface {
	PublishTick(ctx context.Context, t *models.EnrichedTick) error
	PublishChain(ctx context.Context, c *models.EnrichedChain) error
	Close() error
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
