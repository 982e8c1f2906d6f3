package usecase

import (
	"context"
	"fmt"
	"time"

	"DeltaStream/internal/domain/models"
	"DeltaStream/pkg/cache"
	"DeltaStream/pkg/logger"
)

// CacheTTLs configures expiry per read-model family.
type CacheTTLs struct {
	Latest  time.Duration
	Chain   time.Duration
	PCR     time.Duration
	Surface time.Duration
}

// CacheWriter owns every hot read-model key this service maintains.
// All `latest:*` writes funnel through here so key shapes live in one
// place. The cache is never a source of truth: writes are last-write-
// wins, every entry carries a TTL, and a failed write is logged but
// never fails the job that produced it.
type CacheWriter struct {
	store  cache.Service
	ttl    CacheTTLs
	logger *logger.Logger
}

func NewCacheWriter(store cache.Service, ttl CacheTTLs, lgr *logger.Logger) *CacheWriter {
	return &CacheWriter{store: store, ttl: ttl, logger: lgr}
}

func (w *CacheWriter) WriteLatestTick(ctx context.Context, t *models.EnrichedTick) {
	key := cache.GenerateKeyWithParams("latest:underlying", t.Product)
	w.set(ctx, key, t, w.ttl.Latest)
}

func (w *CacheWriter) WriteLatestQuote(ctx context.Context, q *models.OptionQuote) {
	key := cache.GenerateKeyWithParams("latest:option_quote", q.Product, q.Symbol)
	w.set(ctx, key, q, w.ttl.Latest)
}

func (w *CacheWriter) WriteLatestChain(ctx context.Context, c *models.EnrichedChain) {
	w.set(ctx, ChainKey(c.Product, c.Expiry), c, w.ttl.Chain)

	pcr := &models.PCRSummary{
		Version:   models.SchemaVersion,
		PCROI:     c.PCROI,
		PCRVolume: c.PCRVolume,
		Timestamp: c.Timestamp,
	}
	w.set(ctx, cache.GenerateKeyWithParams("latest:pcr", c.Product, c.Expiry), pcr, w.ttl.PCR)
}

// WriteOHLC keys by window length; the TTL equals the window, so a
// stalled pipeline serves nothing rather than stale aggregates.
func (w *CacheWriter) WriteOHLC(ctx context.Context, o *models.OHLCWindow) {
	w.set(ctx, OHLCKey(o.Product, o.WindowMinutes), o, time.Duration(o.WindowMinutes)*time.Minute)
}

func (w *CacheWriter) WriteSurface(ctx context.Context, s *models.VolatilitySurface) {
	w.set(ctx, SurfaceKey(s.Product), s, w.ttl.Surface)
}

func (w *CacheWriter) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if err := w.store.Set(ctx, key, value, ttl); err != nil {
		w.logger.Warn("cache write failed", logger.String("key", key), logger.Error(err))
	}
}

// ChainKey is the full enriched chain read-model key.
func ChainKey(product, expiry string) string {
	return cache.GenerateKeyWithParams("latest:chain", product, expiry)
}

// OHLCKey is the rolling window read-model key, e.g. ohlc:NIFTY:5m.
func OHLCKey(product string, windowMinutes int) string {
	return cache.GenerateKeyWithParams("ohlc", product, fmt.Sprintf("%dm", windowMinutes))
}

// SurfaceKey is the volatility surface read-model key.
func SurfaceKey(product string) string {
	return cache.GenerateKeyWithParams("volatility_surface", product)
}
