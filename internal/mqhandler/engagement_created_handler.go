// Package mqhandler holds the worker-side consumers of the change feed.
// They repair the invariants the write path only checks advisorily: at most
// one engagement per posting, at most one conversation per pair, and a
// posting that stops accepting once engaged.
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

const maxRepairRetries = 5

// Deduper collapses redeliveries of the same change event; satisfied by
// util.Deduper. Release undoes an acquire so a requeued delivery is not
// skipped.
type Deduper interface {
	AcquireOnce(ctx context.Context, handler string, seq int64) bool
	Release(ctx context.Context, handler string, seq int64)
}

// RetryCounter persists per-event retry counts across worker restarts;
// satisfied by util.RetryCounter.
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// DeadLetterPublisher parks events the worker gave up on; satisfied by
// mq.Publisher.
type DeadLetterPublisher interface {
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

type engagementStore interface {
	ListByPosting(ctx context.Context, postingID int64) ([]model.Engagement, error)
	Delete(ctx context.Context, id int64) error
}

type postingStore interface {
	FindByID(ctx context.Context, id int64) (*model.Posting, error)
	UpdateState(ctx context.Context, p *model.Posting) error
}

type EngagementCreatedHandler struct {
	engagements engagementStore
	postings    postingStore
	logger      *zap.Logger
	deduper     Deduper
	retries     RetryCounter
	dlq         DeadLetterPublisher
}

func NewEngagementCreatedHandler(
	engagements engagementStore,
	postings postingStore,
	logger *zap.Logger,
	deduper Deduper,
	retries RetryCounter,
	dlq DeadLetterPublisher,
) *EngagementCreatedHandler {
	return &EngagementCreatedHandler{
		engagements: engagements,
		postings:    postings,
		logger:      logger,
		deduper:     deduper,
		retries:     retries,
		dlq:         dlq,
	}
}

// HandleEngagementCreated repairs the posting an engagement landed on: losers
// of a kick-off race are deleted (lowest id wins) and the accepting flag is
// forced down if the write path's flip was lost.
func (h *EngagementCreatedHandler) HandleEngagementCreated(ctx context.Context, raw json.RawMessage) error {
	var ev feed.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		h.logger.Error("Failed to unmarshal change event (non-retryable)", zap.Error(err))
		return nil // ack, a malformed event never parses better on retry
	}
	if ev.Op != feed.OpInsert {
		return nil
	}

	if !h.deduper.AcquireOnce(ctx, "engagement_repair", ev.Seq) {
		h.logger.Info("Duplicate engagement event skipped", zap.Int64("seq", ev.Seq))
		return nil
	}

	var engagement model.Engagement
	if err := json.Unmarshal(ev.Row, &engagement); err != nil {
		h.logger.Error("Failed to unmarshal engagement row (non-retryable)",
			zap.Int64("seq", ev.Seq),
			zap.Error(err),
		)
		return nil
	}

	if err := h.repairDuplicates(ctx, engagement.PostingID); err != nil {
		return h.fail(ctx, raw, ev, err)
	}
	if err := h.repairAcceptingFlag(ctx, engagement.PostingID); err != nil {
		return h.fail(ctx, raw, ev, err)
	}

	if err := h.retries.Reset(ctx, util.FormatRetryKey("engagement_repair", ev.Seq)); err != nil {
		h.logger.Warn("Failed to reset retry counter", zap.Int64("seq", ev.Seq), zap.Error(err))
	}
	return nil
}

func (h *EngagementCreatedHandler) repairDuplicates(ctx context.Context, postingID int64) error {
	engagements, err := h.engagements.ListByPosting(ctx, postingID)
	if err != nil {
		return err
	}
	if len(engagements) <= 1 {
		return nil
	}

	// ListByPosting orders by id ascending, the first row is the winner
	for _, loser := range engagements[1:] {
		if err := h.engagements.Delete(ctx, loser.ID); err != nil {
			return err
		}
		metrics.IncrementAnomalyRepaired("engagements")
		h.logger.Warn("Duplicate engagement removed",
			zap.Int64("posting_id", postingID),
			zap.Int64("kept_id", engagements[0].ID),
			zap.Int64("removed_id", loser.ID),
		)
	}
	return nil
}

func (h *EngagementCreatedHandler) repairAcceptingFlag(ctx context.Context, postingID int64) error {
	posting, err := h.postings.FindByID(ctx, postingID)
	if err != nil {
		return err
	}
	if !posting.Accepting && posting.Status != model.PostingOpen {
		return nil
	}

	posting.Accepting = false
	if posting.Status == model.PostingOpen {
		posting.Status = model.PostingOngoing
	}
	if err := h.postings.UpdateState(ctx, posting); err != nil {
		return err
	}
	metrics.IncrementAnomalyRepaired("postings")
	h.logger.Warn("Engaged posting was still accepting, flag repaired",
		zap.Int64("posting_id", postingID),
	)
	return nil
}

// fail decides the fate of a failed repair: non-retryable errors are acked,
// retryable ones are requeued until the retry budget runs out, then parked on
// the DLQ.
func (h *EngagementCreatedHandler) fail(ctx context.Context, raw json.RawMessage, ev feed.Event, err error) error {
	h.deduper.Release(ctx, "engagement_repair", ev.Seq)

	isRetryable, errType := util.IsRetryableError(err)
	h.logger.Error("Engagement repair failed",
		zap.Int64("seq", ev.Seq),
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Error(err),
	)
	if !isRetryable {
		return nil
	}

	count, cntErr := h.retries.IncrementAndGet(ctx, util.FormatRetryKey("engagement_repair", ev.Seq))
	if cntErr != nil {
		h.logger.Warn("Retry counter unavailable, requeueing", zap.Int64("seq", ev.Seq), zap.Error(cntErr))
		return err
	}
	if util.ShouldRetry(count, maxRepairRetries, isRetryable) {
		return err
	}

	h.logger.Error("Engagement repair retries exhausted, dead-lettering",
		zap.Int64("seq", ev.Seq),
		zap.Int64("retries", count),
	)
	if dlqErr := h.dlq.PublishToDLQ(mq.RoutingKey(ev.Table), raw, err.Error()); dlqErr != nil {
		h.logger.Error("Failed to dead-letter event", zap.Int64("seq", ev.Seq), zap.Error(dlqErr))
		return err
	}
	return nil
}
