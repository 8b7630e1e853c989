// Package rabbitmq carries OrderCreated events over a RabbitMQ topic exchange.
//
// The order service publishes with publisher confirms and the mandatory flag, so
// an event no queue is bound for is reported as unrouted instead of being lost
// silently. The customer service consumes from a durable queue with manual acks;
// deliveries that fail permanently or exhaust their retries are rejected into a
// dead letter queue.
package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	ExchangeType = "topic"
	Transport    = "rabbitmq"

	// DefaultPublishTimeout bounds the wait for a broker confirm.
	DefaultPublishTimeout = 5 * time.Second
)

// Topology names the exchanges and queues both services agree on.
type Topology struct {
	Exchange           string
	RoutingKey         string
	Queue              string
	DeadLetterExchange string
	Prefetch           int
}

// DeadLetterQueue holds deliveries rejected from Queue.
func (t Topology) DeadLetterQueue() string {
	return t.Queue + ".dlq"
}

// Connect dials url, retrying while the broker starts up.
func Connect(ctx context.Context, url string) (*amqp.Connection, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	conn, err := backoff.Retry(ctx, func() (*amqp.Connection, error) {
		return amqp.Dial(url)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(5),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retryIn", next).Msg("Failed to connect to RabbitMQ")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchange declares the durable topic exchange events are published to.
func DeclareExchange(ch *amqp.Channel, t Topology) error {
	err := ch.ExchangeDeclare(
		t.Exchange,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("could not declare exchange %s: %w", t.Exchange, err)
	}
	return nil
}

// DeclareQueues declares the consumer side: the exchange, the durable queue bound
// by the routing key, and the dead letter exchange with its queue. It also sets
// the channel prefetch.
func DeclareQueues(ch *amqp.Channel, t Topology) error {
	if err := DeclareExchange(ch, t); err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(t.DeadLetterExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("could not declare dead letter exchange %s: %w", t.DeadLetterExchange, err)
	}
	if _, err := ch.QueueDeclare(t.DeadLetterQueue(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("could not declare queue %s: %w", t.DeadLetterQueue(), err)
	}
	if err := ch.QueueBind(t.DeadLetterQueue(), "", t.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("could not bind queue %s: %w", t.DeadLetterQueue(), err)
	}

	_, err := ch.QueueDeclare(
		t.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-dead-letter-exchange": t.DeadLetterExchange},
	)
	if err != nil {
		return fmt.Errorf("could not declare queue %s: %w", t.Queue, err)
	}
	if err := ch.QueueBind(t.Queue, t.RoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("could not bind queue %s: %w", t.Queue, err)
	}

	prefetch := t.Prefetch
	if prefetch < 1 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("could not set prefetch: %w", err)
	}

	log.Info().
		Str("exchange", t.Exchange).
		Str("queue", t.Queue).
		Str("routingKey", t.RoutingKey).
		Msg("RabbitMQ topology declared")
	return nil
}
