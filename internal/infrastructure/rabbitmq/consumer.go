package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ec-order-events/internal/eventbus"
	"github.com/example/ec-order-events/internal/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

var ErrDeliveriesClosed = errors.New("delivery channel closed")

// DeliverySource is the subset of *amqp.Channel the consumer needs.
type DeliverySource interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

type Consumer struct {
	source  DeliverySource
	queue   string
	policy  eventbus.RetryPolicy
	metrics *metrics.Metrics
}

func NewConsumer(source DeliverySource, t Topology, policy eventbus.RetryPolicy, m *metrics.Metrics) *Consumer {
	return &Consumer{source: source, queue: t.Queue, policy: policy, metrics: m}
}

// Consume handles deliveries one at a time until ctx is done or the channel closes.
func (c *Consumer) Consume(ctx context.Context, handler eventbus.MessageHandler) error {
	deliveries, err := c.source.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("could not start consuming %s: %w", c.queue, err)
	}
	log.Info().Str("queue", c.queue).Msg("Consuming order created events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.handle(ctx, d, handler)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, handler eventbus.MessageHandler) {
	logger := log.With().Str("messageId", d.MessageId).Uint64("deliveryTag", d.DeliveryTag).Logger()

	attempts, err := c.policy.Handle(ctx, handler, nil, d.Body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			logger.Error().Err(ackErr).Msg("Failed to ack delivery")
			return
		}
		c.metrics.RecordConsumed(Transport, metrics.ResultAcked)

	case ctx.Err() != nil:
		// Shutting down: hand the message back for another consumer.
		if nackErr := d.Nack(false, true); nackErr != nil {
			logger.Error().Err(nackErr).Msg("Failed to requeue delivery")
		}

	default:
		logger.Error().
			Err(err).
			Int("attempts", attempts).
			Bool("permanent", eventbus.IsPermanent(err)).
			Msg("Dead-lettering order created event")
		if nackErr := d.Nack(false, false); nackErr != nil {
			logger.Error().Err(nackErr).Msg("Failed to reject delivery")
			return
		}
		c.metrics.RecordConsumed(Transport, metrics.ResultDeadLettered)
	}
}
