package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"DeltaStream/internal/service/enrich"
	"DeltaStream/internal/service/gateway"
	"DeltaStream/pkg/logger"
	"DeltaStream/pkg/queue"
)

// OHLCJob recomputes one rolling OHLC window from stored ticks. It is
// a pure recompute: runs under no idempotency guard, last write wins.
type OHLCJob struct {
	gw          *gateway.Gateway
	cacheWriter *CacheWriter
	logger      *logger.Logger
}

func NewOHLCJob(gw *gateway.Gateway, cw *CacheWriter, lgr *logger.Logger) *OHLCJob {
	return &OHLCJob{gw: gw, cacheWriter: cw, logger: lgr}
}

func (j *OHLCJob) Name() string { return "ohlc-builder" }
func (j *OHLCJob) Kind() string { return KindOHLCWindow }

func (j *OHLCJob) IdempotencyKey(json.RawMessage) string { return "" }

func (j *OHLCJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[OHLCWindowPayload](payload)
	if err != nil {
		return queue.Permanent(err)
	}

	now := time.Now().UTC()
	from := now.Add(-time.Duration(p.WindowMinutes) * time.Minute)
	ticks, err := j.gw.Ticks.QueryRange(ctx, p.Product, from, now)
	if err != nil {
		return queue.Transient(fmt.Errorf("query ticks: %w", err))
	}

	window, err := enrich.OHLC(p.Product, p.WindowMinutes, ticks)
	if err != nil {
		return queue.Permanent(err)
	}
	if window == nil {
		// no ticks in the window; leave whatever is cached to expire
		j.logger.Debug("ohlc window empty",
			logger.String("product", p.Product),
			logger.Int("window_minutes", p.WindowMinutes))
		return nil
	}

	j.cacheWriter.WriteOHLC(ctx, window)
	return nil
}

func (j *OHLCJob) Publish(ctx context.Context, payload json.RawMessage) error {
	return nil
}

// SurfaceJob rebuilds the volatility surface for a product from the
// recent quote window. Like OHLC it is unguarded recompute.
type SurfaceJob struct {
	gw          *gateway.Gateway
	cacheWriter *CacheWriter
	window      time.Duration
	logger      *logger.Logger
}

func NewSurfaceJob(gw *gateway.Gateway, cw *CacheWriter, window time.Duration, lgr *logger.Logger) *SurfaceJob {
	return &SurfaceJob{gw: gw, cacheWriter: cw, window: window, logger: lgr}
}

func (j *SurfaceJob) Name() string { return "surface-builder" }
func (j *SurfaceJob) Kind() string { return KindVolatilitySurface }

func (j *SurfaceJob) IdempotencyKey(json.RawMessage) string { return "" }

func (j *SurfaceJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[SurfacePayload](payload)
	if err != nil {
		return queue.Permanent(err)
	}

	now := time.Now().UTC()
	quotes, err := j.gw.Quotes.QueryRecent(ctx, p.Product, now.Add(-j.window))
	if err != nil {
		return queue.Transient(fmt.Errorf("query quotes: %w", err))
	}

	surface, err := enrich.Surface(p.Product, quotes, now)
	if err != nil {
		return queue.Permanent(err)
	}
	if surface == nil {
		j.logger.Debug("surface window empty", logger.String("product", p.Product))
		return nil
	}

	j.cacheWriter.WriteSurface(ctx, surface)
	return nil
}

func (j *SurfaceJob) Publish(ctx context.Context, payload json.RawMessage) error {
	return nil
}

var (
	_ queue.Job = (*OHLCJob)(nil)
	_ queue.Job = (*SurfaceJob)(nil)
)
