package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"DeltaStream/internal/domain/models"
	"DeltaStream/internal/service/gateway"
	"DeltaStream/internal/service/idempotency"
	"DeltaStream/pkg/queue"
)

// QuoteJob persists raw option quotes and keeps the per-symbol latest
// quote warm. Quotes have no outbound channel of their own; they feed
// the volatility surface through the quote store.
type QuoteJob struct {
	gw          *gateway.Gateway
	cacheWriter *CacheWriter
}

func NewQuoteJob(gw *gateway.Gateway, cw *CacheWriter) *QuoteJob {
	return &QuoteJob{gw: gw, cacheWriter: cw}
}

func (j *QuoteJob) Name() string { return "quote-recorder" }
func (j *QuoteJob) Kind() string { return KindOptionQuote }

func (j *QuoteJob) IdempotencyKey(payload json.RawMessage) string {
	q, err := models.DecodeOptionQuote(payload)
	if err != nil {
		return ""
	}
	id := q.Symbol + ":" + strconv.FormatInt(q.Timestamp.UnixNano(), 10)
	return idempotency.Key(idempotency.DomainOptionQuote, q.Product, id)
}

func (j *QuoteJob) Handle(ctx context.Context, payload json.RawMessage) error {
	q, err := models.DecodeOptionQuote(payload)
	if err != nil {
		return queue.Permanent(err)
	}

	if err := j.gw.Quotes.Store(ctx, q); err != nil {
		return queue.Transient(fmt.Errorf("store quote: %w", err))
	}
	j.cacheWriter.WriteLatestQuote(ctx, q)
	return nil
}

func (j *QuoteJob) Publish(ctx context.Context, payload json.RawMessage) error {
	return nil
}

var _ queue.Job = (*QuoteJob)(nil)
