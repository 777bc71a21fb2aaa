package main

import (
	"context"
	"flag"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"gigmarket/config"
	"gigmarket/internal/feed"
	"gigmarket/internal/repository"
	"gigmarket/internal/view"
	"gigmarket/pkg/db"
	"gigmarket/pkg/logger"
	"gigmarket/pkg/outbox"
)

// feedtail follows the change feed and keeps live read models: the transcript
// of one conversation and the proposal counts of a set of postings. Useful
// for watching what realtime clients of the feed would see.
func main() {
	conversationID := flag.Int64("conversation", 0, "conversation id to follow")
	postingIDs := flag.String("postings", "", "comma-separated posting ids to count proposals for")
	flag.Parse()

	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	eventRepo := outbox.NewRepository(dbConn)
	messageRepo := repository.NewMessageRepository(dbConn, eventRepo, log)
	proposalRepo := repository.NewProposalRepository(dbConn, eventRepo, log)

	mux := feed.NewMultiplexer(&feed.AMQPSource{URL: cfg.MQ.URL, Logger: log}, log)
	defer mux.Close()

	if *conversationID != 0 {
		transcript := view.NewMessageView(*conversationID, messageRepo)
		rec := view.NewReconciler(mux, repository.TableMessages, transcript.Filter, transcript, log)
		if err := rec.Start(ctx); err != nil {
			log.Fatal("Transcript reconciler failed to start", zap.Error(err))
		}
		defer rec.Stop()

		// second subscriber on the same stream, logs the live transcript tail
		unsubscribe := mux.Subscribe(ctx, repository.TableMessages, transcript.Filter, &transcriptTail{
			transcript: transcript,
			logger:     log,
		})
		defer unsubscribe()

		log.Info("Following conversation", zap.Int64("conversation_id", *conversationID))
	}

	if *postingIDs != "" {
		counts := view.NewProposalCountView(proposalRepo)
		for _, raw := range strings.Split(*postingIDs, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				log.Fatal("Invalid posting id", zap.String("value", raw), zap.Error(err))
			}
			if err := counts.Track(ctx, id); err != nil {
				log.Fatal("Failed to load proposal count", zap.Int64("posting_id", id), zap.Error(err))
			}
			log.Info("Tracking proposals", zap.Int64("posting_id", id), zap.Int("count", counts.Count(id)))
		}

		rec := view.NewReconciler(mux, repository.TableProposals, nil, counts, log)
		if err := rec.Start(ctx); err != nil {
			log.Fatal("Count reconciler failed to start", zap.Error(err))
		}
		defer rec.Stop()
	}

	if *conversationID == 0 && *postingIDs == "" {
		log.Fatal("Nothing to follow, pass -conversation and/or -postings")
	}

	<-ctx.Done()
	log.Info("Feed tail stopped")
}

// transcriptTail logs the transcript tail whenever a message event arrives.
type transcriptTail struct {
	transcript *view.MessageView
	logger     *zap.Logger
}

func (t *transcriptTail) OnEvent(_ context.Context, ev feed.Event) {
	msgs := t.transcript.Ordered()
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	t.logger.Info("Transcript updated",
		zap.Int64("seq", ev.Seq),
		zap.Int("messages", len(msgs)),
		zap.String("last_sender", last.SenderID),
		zap.String("last_body", last.Body),
	)
}

func (t *transcriptTail) OnResync(_ context.Context) {
	t.logger.Info("Feed resynced, transcript refetched")
}
