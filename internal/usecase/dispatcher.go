package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"DeltaStream/internal/domain/repository"
	pkgkafka "DeltaStream/pkg/kafka"
	"DeltaStream/pkg/queue"
)

// Dispatcher bridges one Kafka topic onto a queue kind. It only checks
// that the payload is JSON; full validation happens inside the job so
// malformed events land in the inspectable dead-letter queue instead of
// vanishing at the consumer. Enqueue failures propagate back to the
// consumer, whose retry backoff is the backpressure path.
type Dispatcher struct {
	topic   string
	kind    string
	queue   queue.QueueService
	metrics repository.Metrics
}

func NewDispatcher(topic, kind string, q queue.QueueService, m repository.Metrics) *Dispatcher {
	return &Dispatcher{topic: topic, kind: kind, queue: q, metrics: m}
}

func (d *Dispatcher) Topic() string { return d.topic }

func (d *Dispatcher) Handle(ctx context.Context, b []byte) error {
	if !json.Valid(b) {
		d.metrics.RecordError("dispatch_invalid_json")
		return fmt.Errorf("topic %s: payload is not valid JSON", d.topic)
	}
	if err := d.queue.Enqueue(ctx, d.kind, json.RawMessage(b)); err != nil {
		d.metrics.RecordError("dispatch_enqueue")
		return fmt.Errorf("enqueue %s: %w", d.kind, err)
	}
	d.metrics.RecordMessageSent("queue", d.kind)
	return nil
}

var _ pkgkafka.MessageHandler = (*Dispatcher)(nil)
