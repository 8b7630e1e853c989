package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/example/ec-order-events/internal/apperror"
	"github.com/example/ec-order-events/internal/domain/order"
	"github.com/example/ec-order-events/internal/metrics"
	"github.com/segmentio/kafka-go"
)

const (
	Transport = "kafka"

	DefaultPublishTimeout = 5 * time.Second
)

// Writer is the subset of *kafka.Writer used here.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Producer implements order.EventPublisher on a Kafka topic. Events are keyed by
// order id so every event of an order lands on the same partition.
type Producer struct {
	writer  Writer
	timeout time.Duration
	metrics *metrics.Metrics
}

func NewProducer(brokers []string, topic string, timeout time.Duration, m *metrics.Metrics) *Producer {
	return newProducer(newWriter(brokers, topic), timeout, m)
}

func newProducer(w Writer, timeout time.Duration, m *metrics.Metrics) *Producer {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Producer{writer: w, timeout: timeout, metrics: m}
}

// PublishOrderCreated reports delivered=true once all in-sync replicas have the event.
func (p *Producer) PublishOrderCreated(ctx context.Context, evt order.OrderCreated) (bool, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return false, fmt.Errorf("could not marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(evt.OrderID, 10)),
		Value: data,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "eventId", Value: []byte(evt.EventID)},
			{Key: "eventType", Value: []byte(order.EventOrderCreated)},
		},
	})
	if err != nil {
		p.metrics.RecordPublish(Transport, metrics.ResultFailed)
		return false, apperror.Publish("failed to publish order created event", err)
	}

	p.metrics.RecordPublish(Transport, metrics.ResultDelivered)
	return true, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
