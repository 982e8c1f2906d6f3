package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"DeltaStream/internal/domain/models"
	"DeltaStream/internal/service/gateway"
	"DeltaStream/internal/service/idempotency"
	"DeltaStream/pkg/logger"
	"DeltaStream/pkg/queue"
)

// TickJob persists underlying ticks, refreshes the latest-price read
// model, fans out OHLC recomputes and republishes the enriched tick.
type TickJob struct {
	gw          *gateway.Gateway
	cacheWriter *CacheWriter
	queue       queue.QueueService
	windows     []int
	logger      *logger.Logger
}

func NewTickJob(gw *gateway.Gateway, cw *CacheWriter, q queue.QueueService, windows []int, lgr *logger.Logger) *TickJob {
	return &TickJob{gw: gw, cacheWriter: cw, queue: q, windows: windows, logger: lgr}
}

func (j *TickJob) Name() string { return "tick-enricher" }
func (j *TickJob) Kind() string { return KindUnderlyingTick }

// IdempotencyKey identifies a tick by (product, sequence). An
// undecodable payload yields no key; Handle dead-letters it anyway.
func (j *TickJob) IdempotencyKey(payload json.RawMessage) string {
	t, err := models.DecodeTick(payload)
	if err != nil {
		return ""
	}
	return idempotency.Key(idempotency.DomainUnderlying, t.Product, strconv.FormatInt(t.SequenceID, 10))
}

func (j *TickJob) Handle(ctx context.Context, payload json.RawMessage) error {
	t, err := models.DecodeTick(payload)
	if err != nil {
		return queue.Permanent(err)
	}

	if err := j.gw.Ticks.Store(ctx, t); err != nil {
		return queue.Transient(fmt.Errorf("store tick: %w", err))
	}

	j.cacheWriter.WriteLatestTick(ctx, enrichTick(t, time.Now().UTC()))
	return nil
}

// Publish republishes the tick and fans out one OHLC recompute per
// configured window. Both are best-effort after the durable write.
func (j *TickJob) Publish(ctx context.Context, payload json.RawMessage) error {
	t, err := models.DecodeTick(payload)
	if err != nil {
		return err
	}

	if err := j.gw.Publisher.PublishTick(ctx, enrichTick(t, time.Now().UTC())); err != nil {
		return fmt.Errorf("publish tick: %w", err)
	}

	for _, w := range j.windows {
		p := OHLCWindowPayload{Product: t.Product, WindowMinutes: w}
		if err := j.queue.Enqueue(ctx, KindOHLCWindow, p); err != nil {
			j.logger.Warn("ohlc fan-out dropped",
				logger.String("product", t.Product),
				logger.Int("window_minutes", w),
				logger.Error(err))
		}
	}
	return nil
}

func enrichTick(t *models.Tick, now time.Time) *models.EnrichedTick {
	return &models.EnrichedTick{
		Version:     models.SchemaVersion,
		Product:     t.Product,
		Price:       t.Price,
		Timestamp:   t.Timestamp,
		SequenceID:  t.SequenceID,
		ProcessedAt: now,
	}
}

var _ queue.Job = (*TickJob)(nil)
