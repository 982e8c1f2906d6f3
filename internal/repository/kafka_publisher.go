package repository

import (
	"context"

	"DeltaStream/internal/domain/models"
	"DeltaStream/internal/domain/repository"
	xkafka "DeltaStream/pkg/kafka"
)

// KafkaEnrichedPublisher republishes enriched payloads for downstream
// consumers. Messages are keyed by product so a partition preserves
// per-product ordering.
type KafkaEnrichedPublisher struct {
	producer   *xkafka.Producer
	tickTopic  string
	chainTopic string
}

// NewKafkaEnrichedPublisher wires the producer to the enriched output topics.
func NewKafkaEnrichedPublisher(producer *xkafka.Producer, tickTopic, chainTopic string) repository.EnrichedPublisher {
	return &KafkaEnrichedPublisher{
		producer:   producer,
		tickTopic:  tickTopic,
		chainTopic: chainTopic,
	}
}

func (p *KafkaEnrichedPublisher) PublishTick(ctx context.Context, t *models.EnrichedTick) error {
	return p.producer.Publish(ctx, p.tickTopic, []byte(t.Product), t)
}

func (p *KafkaEnrichedPublisher) PublishChain(ctx context.Context, c *models.EnrichedChain) error {
	return p.producer.Publish(ctx, p.chainTopic, []byte(c.Product), c)
}

func (p *KafkaEnrichedPublisher) Close() error {
	return p.producer.Close()
}
