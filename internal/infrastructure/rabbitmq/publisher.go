package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/ec-order-events/internal/apperror"
	"github.com/example/ec-order-events/internal/domain/order"
	"github.com/example/ec-order-events/internal/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

var ErrNacked = errors.New("broker nacked the message")

// Confirmation resolves once the broker has taken responsibility for a message.
type Confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// Channel publishes a mandatory message and returns its pending confirmation.
type Channel interface {
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (Confirmation, error)
}

type confirmChannel struct {
	ch *amqp.Channel
}

func (c confirmChannel) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (Confirmation, error) {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, true, false, msg)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

// Publisher implements order.EventPublisher.
type Publisher struct {
	mu sync.Mutex

	ch         Channel
	returns    <-chan amqp.Return
	exchange   string
	routingKey string
	timeout    time.Duration
	metrics    *metrics.Metrics
}

// NewPublisher puts ch into confirm mode and listens for returned messages.
// ch must not be shared with other publishers.
func NewPublisher(ch *amqp.Channel, t Topology, timeout time.Duration, m *metrics.Metrics) (*Publisher, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("could not enable publisher confirms: %w", err)
	}
	returns := ch.NotifyReturn(make(chan amqp.Return, 16))
	return newPublisher(confirmChannel{ch: ch}, returns, t, timeout, m), nil
}

func newPublisher(ch Channel, returns <-chan amqp.Return, t Topology, timeout time.Duration, m *metrics.Metrics) *Publisher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Publisher{
		ch:         ch,
		returns:    returns,
		exchange:   t.Exchange,
		routingKey: t.RoutingKey,
		timeout:    timeout,
		metrics:    m,
	}
}

// PublishOrderCreated reports delivered=false without an error when the broker
// accepted the event but no queue was bound for it.
func (p *Publisher) PublishOrderCreated(ctx context.Context, evt order.OrderCreated) (bool, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return false, fmt.Errorf("could not marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// Confirms and returns are matched to the message in flight.
	p.mu.Lock()
	defer p.mu.Unlock()

	confirm, err := p.ch.Publish(ctx, p.exchange, p.routingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.EventID,
		Type:         order.EventOrderCreated,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.metrics.RecordPublish(Transport, metrics.ResultFailed)
		return false, apperror.Publish("failed to publish order created event", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		p.metrics.RecordPublish(Transport, metrics.ResultFailed)
		return false, apperror.Publish("no publisher confirm", err)
	}
	if !acked {
		p.metrics.RecordPublish(Transport, metrics.ResultFailed)
		return false, apperror.Publish("failed to publish order created event", ErrNacked)
	}

	if p.returned(evt.EventID) {
		p.metrics.RecordPublish(Transport, metrics.ResultUnrouted)
		log.Warn().
			Str("eventId", evt.EventID).
			Str("routingKey", p.routingKey).
			Msg("Order created event was not routed to any queue")
		return false, nil
	}

	p.metrics.RecordPublish(Transport, metrics.ResultDelivered)
	return true, nil
}

// returned drains buffered returns. The broker sends basic.return before the
// confirm, so a return for eventID is already buffered once the confirm resolves.
func (p *Publisher) returned(eventID string) bool {
	for {
		select {
		case r, ok := <-p.returns:
			if !ok {
				return false
			}
			if r.MessageId == eventID {
				return true
			}
		default:
			return false
		}
	}
}
