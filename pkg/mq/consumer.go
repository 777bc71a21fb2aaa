package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"gigmarket/pkg/otel"
	"gigmarket/pkg/trace"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	conn       *amqp091.Connection
	logger     *zap.Logger

	// feed consumers ack manually like workers do, but nack without requeue:
	// events feed local projections, and a failed fold is logged and dropped
	// rather than replayed (the subscriber's next resync corrects it)
	feedMode bool
}

// NewConsumer creates a work-queue consumer for a specific routing key. The
// queue is durable and shared, so competing worker instances split the load.
func NewConsumer(url, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	return newConsumer(url, queueName, routingKey, logger, false)
}

// NewFeedConsumer creates a fan-out consumer for a table's change feed. The
// queue is exclusive and auto-deleted, so every subscriber process sees every
// event and a dropped connection discards the queue (the subscriber resyncs
// instead of replaying a gap).
func NewFeedConsumer(url, routingKey string, logger *zap.Logger) (*Consumer, error) {
	return newConsumer(url, "", routingKey, logger, true)
}

func newConsumer(url, queueName, routingKey string, logger *zap.Logger, feedMode bool) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		queueName,
		!feedMode, // durable
		feedMode,  // delete when unused
		feedMode,  // exclusive
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		routingKey,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", q.Name),
		zap.String("exchange", ExchangeName),
		zap.Bool("feed_mode", feedMode),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		routingKey: routingKey,
		logger:     logger,
		feedMode:   feedMode,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming consumes messages until the context is cancelled or the
// underlying connection drops; it returns nil on a drop so the caller can
// decide to reconnect and resync. Blocks; run in a goroutine.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-deliveries:
			if !ok {
				// connection dropped; deliveries may be lost, caller resyncs
				return nil
			}
			c.consumeOne(ctx, msg)
		}
	}
}

func (c *Consumer) consumeOne(ctx context.Context, msg amqp091.Delivery) {
	if traceID, ok := msg.Headers["x-trace-id"].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}
	ctx = otel.GetTextMapPropagator().Extract(ctx, otel.NewMQHeaderCarrier(msg.Headers))
	ctx, span := otel.MQConsumeSpan(ctx, c.routingKey, c.queue.Name)
	defer span.End()

	// handler panics must not leave the message unacked forever
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic recovered",
				zap.String("routing_key", c.routingKey),
				zap.String("queue", c.queue.Name),
				zap.Any("panic", r),
			)
			if err := msg.Nack(false, !c.feedMode); err != nil {
				c.logger.Error("Failed to nack message after panic",
					zap.String("routing_key", c.routingKey),
					zap.Error(err),
				)
			}
		}
	}()

	if err := c.handler(ctx, msg.Body); err != nil {
		c.logger.Error("Handler error",
			zap.String("routing_key", c.routingKey),
			zap.String("queue", c.queue.Name),
			zap.Error(err),
		)
		// work-queue mode requeues for retry; feed mode drops, the
		// subscriber's next resync corrects the projection
		if err := msg.Nack(false, !c.feedMode); err != nil {
			c.logger.Error("Failed to nack message",
				zap.String("routing_key", c.routingKey),
				zap.Error(err),
			)
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("routing_key", c.routingKey),
			zap.Error(err),
		)
	}
}
