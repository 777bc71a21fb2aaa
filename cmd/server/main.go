package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gigmarket/config"
	"gigmarket/internal/api"
	"gigmarket/internal/repository"
	"gigmarket/internal/service"
	"gigmarket/pkg/db"
	"gigmarket/pkg/logger"
	"gigmarket/pkg/mq"
	"gigmarket/pkg/otel"
	"gigmarket/pkg/outbox"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName: "gigmarket-server",
		Endpoint:    cfg.Otel.Endpoint,
		Enabled:     cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Tracing initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("MQ publisher initialization failed", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories write through the transactional outbox; the dispatcher
	// drains it onto the change exchange.
	eventRepo := outbox.NewRepository(dbConn)
	dispatcher := outbox.NewDispatcher(eventRepo, publisher, log)

	postingRepo := repository.NewPostingRepository(dbConn, eventRepo, log)
	proposalRepo := repository.NewProposalRepository(dbConn, eventRepo, log)
	engagementRepo := repository.NewEngagementRepository(dbConn, eventRepo, log)
	milestoneRepo := repository.NewMilestoneRepository(dbConn, eventRepo, log)
	conversationRepo := repository.NewConversationRepository(dbConn, eventRepo, log)
	messageRepo := repository.NewMessageRepository(dbConn, eventRepo, log)

	postingService := service.NewPostingService(postingRepo, log)
	proposalService := service.NewProposalService(proposalRepo, postingRepo, log)
	engagementService := service.NewEngagementService(engagementRepo, proposalRepo, postingRepo, milestoneRepo, log)
	milestoneService := service.NewMilestoneService(milestoneRepo, engagementRepo, postingRepo, log)
	chatService := service.NewChatService(conversationRepo, messageRepo, log)

	router := api.NewRouter(
		api.NewPostingHandler(postingService, engagementService),
		api.NewProposalHandler(proposalService),
		api.NewEngagementHandler(engagementService),
		api.NewMilestoneHandler(milestoneService),
		api.NewChatHandler(chatService),
		cfg.JWT.Secret,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatcher.Start(ctx)
		return nil
	})
	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("port", cfg.Server.Port))
		return router.Run(":" + cfg.Server.Port)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("Server exited", zap.Error(err))
	}
}
