package di

import (
	"context"
	"fmt"
	"time"

	"DeltaStream/internal/domain/repository"
	"DeltaStream/internal/handler/api"
	internalrepo "DeltaStream/internal/repository"
	"DeltaStream/internal/service/gateway"
	"DeltaStream/internal/service/idempotency"
	"DeltaStream/internal/usecase"
	"DeltaStream/pkg/cache"
	pkgch "DeltaStream/pkg/clickhouse"
	"DeltaStream/pkg/config"
	pkgkafka "DeltaStream/pkg/kafka"
	"DeltaStream/pkg/logger"
	"DeltaStream/pkg/metrics"
	"DeltaStream/pkg/queue"
	"DeltaStream/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and initializes
// the schema. Ticks and chains use ReplacingMergeTree keyed on their
// logical identity, so a retried insert after a partial failure
// collapses back to one row.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	if err := client.InitSchema(ctx, []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.underlying_ticks (product String, seq UInt64, price Float64, ts DateTime64(3), processed_at DateTime64(3)) ENGINE=ReplacingMergeTree ORDER BY (product, seq)", db),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.option_quotes (product String, symbol String, strike Float64, expiry String, type String, bid Float64, ask Float64, last Float64, volume UInt64, open_interest UInt64, iv Float64, delta Float64, gamma Float64, vega Float64, theta Float64, ts DateTime64(3), processed_at DateTime64(3)) ENGINE=MergeTree ORDER BY (product, expiry, strike, ts)", db),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.enriched_chains (product String, expiry String, ts DateTime64(3), spot_price Float64, pcr_oi Float64, pcr_volume Float64, atm_strike Float64, atm_straddle_price Float64, max_pain_strike Float64, total_call_oi UInt64, total_put_oi UInt64, call_buildup_otm UInt64, put_buildup_otm UInt64, calls String, puts String, processed_at DateTime64(3)) ENGINE=ReplacingMergeTree ORDER BY (product, expiry, ts)", db),
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideRedisCache creates the shared Redis connection used by the
// cache, the idempotency guard and the job queue.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	c, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideCacheService exposes the Redis cache behind the Service interface.
func ProvideCacheService(c *cache.RedisCache) cache.Service {
	return c
}

// ProvideIdempotencyGuard creates the seen-key guard on the shared cache.
func ProvideIdempotencyGuard(c cache.Service) *idempotency.Guard {
	return idempotency.New(c)
}

// ProvideTickStore creates the underlying tick repository.
func ProvideTickStore(chClient *pkgch.Client, cfg *config.Config) repository.TickStore {
	return internalrepo.NewClickHouseTickStore(chClient.DB(), cfg.ClickHouse.Database+".underlying_ticks")
}

// ProvideQuoteStore creates the option quote repository.
func ProvideQuoteStore(chClient *pkgch.Client, cfg *config.Config) repository.QuoteStore {
	return internalrepo.NewClickHouseQuoteStore(chClient.DB(), cfg.ClickHouse.Database+".option_quotes")
}

// ProvideChainStore creates the enriched chain repository.
func ProvideChainStore(chClient *pkgch.Client, cfg *config.Config) repository.ChainStore {
	return internalrepo.NewClickHouseChainStore(chClient.DB(), cfg.ClickHouse.Database+".enriched_chains")
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Producer.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.Producer.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEnrichedPublisher creates the outbound Kafka publisher.
func ProvideEnrichedPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EnrichedPublisher {
	return internalrepo.NewKafkaEnrichedPublisher(producer, cfg.Kafka.Topics.EnrichedTick, cfg.Kafka.Topics.EnrichedChain)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideGateway bundles the I/O handles for job use.
func ProvideGateway(
	ticks repository.TickStore,
	quotes repository.QuoteStore,
	chains repository.ChainStore,
	c cache.Service,
	pub repository.EnrichedPublisher,
) *gateway.Gateway {
	return gateway.New(ticks, quotes, chains, c, pub)
}

// ProvideCacheWriter creates the read-model writer with configured TTLs.
func ProvideCacheWriter(c cache.Service, cfg *config.Config, lgr *logger.Logger) *usecase.CacheWriter {
	return usecase.NewCacheWriter(c, usecase.CacheTTLs{
		Latest:  cfg.Enrichment.CacheTTL.Latest,
		Chain:   cfg.Enrichment.CacheTTL.Chain,
		PCR:     cfg.Enrichment.CacheTTL.PCR,
		Surface: cfg.Enrichment.CacheTTL.Surface,
	}, lgr)
}

// ProvideQueue creates the Redis task executor. Jobs are registered by
// the app at startup, after they were built against this same queue.
func ProvideQueue(lgr *logger.Logger, cfg *config.Config, c *cache.RedisCache, guard *idempotency.Guard) *queue.RedisQueue {
	return queue.NewRedisQueue(lgr, &queue.QueueConfig{
		Workers:        cfg.Worker.Workers,
		MaxDepth:       cfg.Worker.MaxDepth,
		RetryLimit:     cfg.Worker.RetryLimit,
		RetryBase:      cfg.Worker.RetryBase,
		RetryCap:       cfg.Worker.RetryCap,
		JobTimeout:     cfg.Worker.JobTimeout,
		IdempotencyTTL: cfg.Worker.IdempotencyTTL,
	}, c.Client(), queue.ModeProducerConsumer, queue.WithIdempotencyGuard(guard))
}

// ProvideJobs builds one job per queue kind.
func ProvideJobs(
	gw *gateway.Gateway,
	cw *usecase.CacheWriter,
	q *queue.RedisQueue,
	cfg *config.Config,
	lgr *logger.Logger,
) []queue.Job {
	return []queue.Job{
		usecase.NewTickJob(gw, cw, q, cfg.Enrichment.OHLCWindows, lgr),
		usecase.NewQuoteJob(gw, cw),
		usecase.NewChainJob(gw, cw, q, lgr),
		usecase.NewOHLCJob(gw, cw, lgr),
		usecase.NewSurfaceJob(gw, cw, cfg.Enrichment.SurfaceWindow, lgr),
	}
}

// ProvideDispatchers maps each inbound topic onto its queue kind.
func ProvideDispatchers(cfg *config.Config, q *queue.RedisQueue, m repository.Metrics) []pkgkafka.MessageHandler {
	return []pkgkafka.MessageHandler{
		usecase.NewDispatcher(cfg.Kafka.Topics.Underlying, usecase.KindUnderlyingTick, q, m),
		usecase.NewDispatcher(cfg.Kafka.Topics.OptionQuote, usecase.KindOptionQuote, q, m),
		usecase.NewDispatcher(cfg.Kafka.Topics.OptionChain, usecase.KindOptionChain, q, m),
	}
}

// ProvideMarketHandler creates the HTTP ops handler.
func ProvideMarketHandler(lgr *logger.Logger, gw *gateway.Gateway, chains repository.ChainStore, q *queue.RedisQueue) *api.MarketEchoHandler {
	return api.NewMarketEchoHandler(lgr, gw, chains, q)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	q *queue.RedisQueue,
	jobs []queue.Job,
	consumer *pkgkafka.Consumer,
	dispatchers []pkgkafka.MessageHandler,
	handler *api.MarketEchoHandler,
	chClient *pkgch.Client,
	redisCache *cache.RedisCache,
	publisher repository.EnrichedPublisher,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NewHookChain(
			pkgkafka.NewTraceLogHook(lgr, time.Second),
		))
	}
	return server.New(cfg, lgr, q, jobs, consumer, dispatchers, handler, chClient, redisCache, publisher)
}
