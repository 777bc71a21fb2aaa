package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"gigmarket/internal/feed"
	"gigmarket/internal/model"
	"gigmarket/pkg/metrics"
	"gigmarket/pkg/mq"
	"gigmarket/pkg/util"
)

type conversationStore interface {
	ListByPair(ctx context.Context, userA, userB string) ([]model.Conversation, error)
	Delete(ctx context.Context, id int64) error
}

type ConversationCreatedHandler struct {
	conversations conversationStore
	logger        *zap.Logger
	deduper       Deduper
	retries       RetryCounter
	dlq           DeadLetterPublisher
}

func NewConversationCreatedHandler(
	conversations conversationStore,
	logger *zap.Logger,
	deduper Deduper,
	retries RetryCounter,
	dlq DeadLetterPublisher,
) *ConversationCreatedHandler {
	return &ConversationCreatedHandler{
		conversations: conversations,
		logger:        logger,
		deduper:       deduper,
		retries:       retries,
		dlq:           dlq,
	}
}

// HandleConversationCreated removes the losers when concurrent get-or-create
// calls raced past each other. Readers already resolve the pair to the lowest
// id, so deleting the higher ids changes nothing they can observe.
func (h *ConversationCreatedHandler) HandleConversationCreated(ctx context.Context, raw json.RawMessage) error {
	var ev feed.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		h.logger.Error("Failed to unmarshal change event (non-retryable)", zap.Error(err))
		return nil
	}
	if ev.Op != feed.OpInsert {
		return nil
	}

	if !h.deduper.AcquireOnce(ctx, "conversation_repair", ev.Seq) {
		h.logger.Info("Duplicate conversation event skipped", zap.Int64("seq", ev.Seq))
		return nil
	}

	var conversation model.Conversation
	if err := json.Unmarshal(ev.Row, &conversation); err != nil {
		h.logger.Error("Failed to unmarshal conversation row (non-retryable)",
			zap.Int64("seq", ev.Seq),
			zap.Error(err),
		)
		return nil
	}

	rows, err := h.conversations.ListByPair(ctx, conversation.ClientID, conversation.FreelancerID)
	if err != nil {
		return h.fail(ctx, raw, ev, err)
	}
	if len(rows) <= 1 {
		return nil
	}

	for _, loser := range rows[1:] {
		if err := h.conversations.Delete(ctx, loser.ID); err != nil {
			return h.fail(ctx, raw, ev, err)
		}
		metrics.IncrementAnomalyRepaired("conversations")
		h.logger.Warn("Duplicate conversation removed",
			zap.String("client_id", conversation.ClientID),
			zap.String("freelancer_id", conversation.FreelancerID),
			zap.Int64("kept_id", rows[0].ID),
			zap.Int64("removed_id", loser.ID),
		)
	}

	if err := h.retries.Reset(ctx, util.FormatRetryKey("conversation_repair", ev.Seq)); err != nil {
		h.logger.Warn("Failed to reset retry counter", zap.Int64("seq", ev.Seq), zap.Error(err))
	}
	return nil
}

func (h *ConversationCreatedHandler) fail(ctx context.Context, raw json.RawMessage, ev feed.Event, err error) error {
	h.deduper.Release(ctx, "conversation_repair", ev.Seq)

	isRetryable, errType := util.IsRetryableError(err)
	h.logger.Error("Conversation repair failed",
		zap.Int64("seq", ev.Seq),
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Error(err),
	)
	if !isRetryable {
		return nil
	}

	count, cntErr := h.retries.IncrementAndGet(ctx, util.FormatRetryKey("conversation_repair", ev.Seq))
	if cntErr != nil {
		h.logger.Warn("Retry counter unavailable, requeueing", zap.Int64("seq", ev.Seq), zap.Error(cntErr))
		return err
	}
	if util.ShouldRetry(count, maxRepairRetries, isRetryable) {
		return err
	}

	h.logger.Error("Conversation repair retries exhausted, dead-lettering",
		zap.Int64("seq", ev.Seq),
		zap.Int64("retries", count),
	)
	if dlqErr := h.dlq.PublishToDLQ(mq.RoutingKey(ev.Table), raw, err.Error()); dlqErr != nil {
		h.logger.Error("Failed to dead-letter event", zap.Int64("seq", ev.Seq), zap.Error(dlqErr))
		return err
	}
	return nil
}
