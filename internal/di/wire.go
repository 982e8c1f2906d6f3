//go:build wireinject
// +build wireinject

package di

import (
	"DeltaStream/pkg/config"
	"DeltaStream/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCacheService,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideTickStore,
		ProvideQuoteStore,
		ProvideChainStore,
		ProvideEnrichedPublisher,

		// Pipeline
		ProvideIdempotencyGuard,
		ProvideQueue,
		ProvideGateway,
		ProvideCacheWriter,
		ProvideJobs,
		ProvideDispatchers,

		// HTTP
		ProvideMarketHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
