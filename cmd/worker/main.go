package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gigmarket/config"
	"gigmarket/internal/mqhandler"
	"gigmarket/internal/repository"
	"gigmarket/pkg/db"
	"gigmarket/pkg/logger"
	"gigmarket/pkg/mq"
	"gigmarket/pkg/otel"
	"gigmarket/pkg/outbox"
	redisclient "gigmarket/pkg/redis"
	"gigmarket/pkg/util"
)

// The worker is the reconciliation half of the system: it consumes the
// change feed through durable work queues and repairs what the advisory
// write-path checks let through.
func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName: "gigmarket-worker",
		Endpoint:    cfg.Otel.Endpoint,
		Enabled:     cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Tracing initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, time.Hour, log)
	retries := util.NewRetryCounter(rdb, 24*time.Hour)

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("MQ initialization failed", zap.Error(err))
	}
	defer publisher.Close()

	for _, table := range []string{repository.TableEngagements, repository.TableConversations} {
		if err := publisher.EnsureDLQQueue(mq.RoutingKey(table)); err != nil {
			log.Fatal("DLQ queue declaration failed", zap.String("table", table), zap.Error(err))
		}
	}

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	eventRepo := outbox.NewRepository(dbConn)
	engagementRepo := repository.NewEngagementRepository(dbConn, eventRepo, log)
	postingRepo := repository.NewPostingRepository(dbConn, eventRepo, log)
	conversationRepo := repository.NewConversationRepository(dbConn, eventRepo, log)

	engagementHandler := mqhandler.NewEngagementCreatedHandler(engagementRepo, postingRepo, log, deduper, retries, publisher)
	conversationHandler := mqhandler.NewConversationCreatedHandler(conversationRepo, log, deduper, retries, publisher)

	engagementConsumer, err := mq.NewConsumer(
		cfg.MQ.URL,
		"change.engagements.repair.q",
		mq.RoutingKey(repository.TableEngagements),
		log,
	)
	if err != nil {
		log.Fatal("Failed to init engagement consumer", zap.Error(err))
	}
	defer engagementConsumer.Close()
	engagementConsumer.SetHandler(engagementHandler.HandleEngagementCreated)

	conversationConsumer, err := mq.NewConsumer(
		cfg.MQ.URL,
		"change.conversations.repair.q",
		mq.RoutingKey(repository.TableConversations),
		log,
	)
	if err != nil {
		log.Fatal("Failed to init conversation consumer", zap.Error(err))
	}
	defer conversationConsumer.Close()
	conversationConsumer.SetHandler(conversationHandler.HandleConversationCreated)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting engagement repair consumer")
		return engagementConsumer.StartConsuming(ctx)
	})
	g.Go(func() error {
		log.Info("Starting conversation repair consumer")
		return conversationConsumer.StartConsuming(ctx)
	})

	log.Info("Worker ready")
	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal("Worker exited", zap.Error(err))
	}
}
