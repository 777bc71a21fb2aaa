package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gigmarket/pkg/circuitbreaker"
	"gigmarket/pkg/metrics"
	"gigmarket/pkg/mq"
)

// EventStore is the slice of the outbox repository the dispatcher drains.
type EventStore interface {
	GetPendingEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkAsSent(ctx context.Context, eventID int64) error
	MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error
}

// EventPublisher pushes one envelope to the changes exchange; satisfied by
// mq.Publisher.
type EventPublisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// Dispatcher drains pending change events and publishes them to the changes
// exchange. A circuit breaker keeps it from hammering a dead broker; parked
// events stay pending and go out once the breaker closes again.
type Dispatcher struct {
	repo       EventStore
	publisher  EventPublisher
	logger     *zap.Logger
	breaker    *circuitbreaker.CircuitBreaker
	maxRetries int
	interval   time.Duration
	batchSize  int
}

func NewDispatcher(
	repo EventStore,
	publisher EventPublisher,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		publisher:  publisher,
		logger:     logger,
		breaker:    circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		maxRetries: 5,
		interval:   time.Second,
		batchSize:  100,
	}
}

func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	d.maxRetries = maxRetries
	return d
}

func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	d.interval = interval
	return d
}

func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	d.batchSize = batchSize
	return d
}

// Start runs the dispatch loop until the context is cancelled. Blocks; run
// in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting change-event dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Change-event dispatcher stopped")
			return
		case <-ticker.C:
			d.processPendingEvents(ctx)
		}
	}
}

func (d *Dispatcher) processPendingEvents(ctx context.Context) {
	events, err := d.repo.GetPendingEvents(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("Failed to get pending change events", zap.Error(err))
		return
	}

	// one failure freezes that table for the rest of the batch, so a later
	// event can never be published ahead of the one being retried
	stalled := map[string]bool{}
	for _, event := range events {
		if stalled[event.Table] {
			continue
		}
		err := d.breaker.Execute(func() error {
			return d.publishEvent(ctx, event)
		})
		if err != nil {
			if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
				// broker is down; leave the rest of the batch pending
				return
			}
			stalled[event.Table] = true
			d.logger.Error("Failed to publish change event",
				zap.Int64("event_id", event.ID),
				zap.String("table", event.Table),
				zap.Error(err),
			)
			if err := d.repo.MarkAsFailed(ctx, event.ID, d.maxRetries); err != nil {
				d.logger.Error("Failed to mark change event as failed",
					zap.Int64("event_id", event.ID),
					zap.Error(err),
				)
			}
			continue
		}

		if err := d.repo.MarkAsSent(ctx, event.ID); err != nil {
			d.logger.Error("Failed to mark change event as sent",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}

		metrics.IncrementChangeEventPublished(event.Table, event.Op)
	}
}

// envelope is the wire shape feed subscribers decode.
type envelope struct {
	Seq   int64           `json:"seq"`
	Table string          `json:"table"`
	Op    string          `json:"op"`
	RowID int64           `json:"row_id"`
	Row   json.RawMessage `json:"row"`
}

func (d *Dispatcher) publishEvent(ctx context.Context, event *Event) error {
	env := envelope{
		Seq:   event.ID,
		Table: event.Table,
		Op:    event.Op,
		RowID: event.RowID,
		Row:   event.Payload,
	}

	if err := d.publisher.PublishWithContext(ctx, mq.RoutingKey(event.Table), env); err != nil {
		return fmt.Errorf("failed to publish to MQ: %w", err)
	}

	return nil
}
