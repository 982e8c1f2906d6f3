package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"DeltaStream/internal/domain/models"
	"DeltaStream/internal/service/enrich"
	"DeltaStream/internal/service/gateway"
	"DeltaStream/internal/service/idempotency"
	"DeltaStream/pkg/logger"
	"DeltaStream/pkg/queue"
)

// ChainJob runs the full chain enrichment: PCR, ATM straddle, max pain
// and OI build-up over one snapshot, then writes durable + cache and
// triggers a surface rebuild.
type ChainJob struct {
	gw          *gateway.Gateway
	cacheWriter *CacheWriter
	queue       queue.QueueService
	logger      *logger.Logger
}

func NewChainJob(gw *gateway.Gateway, cw *CacheWriter, q queue.QueueService, lgr *logger.Logger) *ChainJob {
	return &ChainJob{gw: gw, cacheWriter: cw, queue: q, logger: lgr}
}

func (j *ChainJob) Name() string { return "chain-enricher" }
func (j *ChainJob) Kind() string { return KindOptionChain }

// IdempotencyKey identifies a snapshot by (product, expiry, timestamp).
func (j *ChainJob) IdempotencyKey(payload json.RawMessage) string {
	snap, err := models.DecodeChainSnapshot(payload)
	if err != nil {
		return ""
	}
	id := snap.Expiry + ":" + strconv.FormatInt(snap.Timestamp.UnixNano(), 10)
	return idempotency.Key(idempotency.DomainOptionChain, snap.Product, id)
}

func (j *ChainJob) Handle(ctx context.Context, payload json.RawMessage) error {
	snap, err := models.DecodeChainSnapshot(payload)
	if err != nil {
		return queue.Permanent(err)
	}

	enriched, err := enrich.Chain(snap, time.Now().UTC())
	if err != nil {
		return queue.Permanent(err)
	}

	if err := j.gw.Chains.Store(ctx, enriched); err != nil {
		return queue.Transient(fmt.Errorf("store enriched chain: %w", err))
	}
	j.cacheWriter.WriteLatestChain(ctx, enriched)
	return nil
}

// Publish republishes the enriched chain and requests a surface
// rebuild. The cached copy is preferred so the published payload
// matches the stored row; a miss recomputes from the snapshot.
func (j *ChainJob) Publish(ctx context.Context, payload json.RawMessage) error {
	snap, err := models.DecodeChainSnapshot(payload)
	if err != nil {
		return err
	}

	var enriched models.EnrichedChain
	if err := j.gw.Cache.Get(ctx, ChainKey(snap.Product, snap.Expiry), &enriched); err != nil {
		fresh, enrichErr := enrich.Chain(snap, time.Now().UTC())
		if enrichErr != nil {
			return enrichErr
		}
		enriched = *fresh
	}

	if err := j.gw.Publisher.PublishChain(ctx, &enriched); err != nil {
		return fmt.Errorf("publish chain: %w", err)
	}

	if err := j.queue.Enqueue(ctx, KindVolatilitySurface, SurfacePayload{Product: snap.Product}); err != nil {
		j.logger.Warn("surface fan-out dropped",
			logger.String("product", snap.Product),
			logger.Error(err))
	}
	return nil
}

var _ queue.Job = (*ChainJob)(nil)
