package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DeltaStream/internal/domain/repository"
	"DeltaStream/pkg/cache"
	pkgch "DeltaStream/pkg/clickhouse"
	"DeltaStream/pkg/config"
	xhttp "DeltaStream/pkg/http"
	pkgkafka "DeltaStream/pkg/kafka"
	applogger "DeltaStream/pkg/logger"
	"DeltaStream/pkg/queue"
)

// App encapsulates the entire application lifecycle: the queue worker
// pool, the Kafka dispatchers feeding it and the ops HTTP server.
type App struct {
	cfg         *config.Config
	logger      *applogger.Logger
	queue       *queue.RedisQueue
	jobs        []queue.Job
	consumer    *pkgkafka.Consumer
	dispatchers []pkgkafka.MessageHandler
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	chClient    *pkgch.Client
	redisCache  *cache.RedisCache
	publisher   repository.EnrichedPublisher
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	q *queue.RedisQueue,
	jobs []queue.Job,
	consumer *pkgkafka.Consumer,
	dispatchers []pkgkafka.MessageHandler,
	httpHandler xhttp.Handler,
	chClient *pkgch.Client,
	redisCache *cache.RedisCache,
	publisher repository.EnrichedPublisher,
) *App {
	return &App{
		cfg:         cfg,
		logger:      logger,
		queue:       q,
		jobs:        jobs,
		consumer:    consumer,
		dispatchers: dispatchers,
		httpHandler: httpHandler,
		chClient:    chClient,
		redisCache:  redisCache,
		publisher:   publisher,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	l := a.logger

	// Workers first, so a backlog left by a previous run drains even
	// before the consumer connects.
	a.queue.RegisterJobs(a.jobs)
	if err := a.queue.Start(); err != nil {
		l.Error("queue start failed", applogger.Error(err))
		return err
	}
	l.Info("queue started", applogger.Int("jobs", len(a.jobs)))

	if a.consumer != nil {
		for _, d := range a.dispatchers {
			a.consumer.RegisterHandler(d)
			l.Info("dispatcher registered", applogger.String("topic", d.Topic()))
		}
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestMetrics(l, time.Second),
	)
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(context.Background())
}

// shutdown stops intake first, then drains workers, then closes the
// outbound and storage handles.
func (a *App) shutdown(ctx context.Context) error {
	l := a.logger

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if err := a.queue.Stop(shutdownCtx); err != nil {
		l.Warn("queue stop error", applogger.Error(err))
	}

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			l.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
