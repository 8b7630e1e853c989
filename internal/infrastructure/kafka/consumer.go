package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/example/ec-order-events/internal/eventbus"
	"github.com/example/ec-order-events/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Reader is the subset of *kafka.Reader used here.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterTopic is where messages that cannot be processed are parked.
func DeadLetterTopic(topic string) string {
	return topic + ".dlq"
}

// Consumer reads a topic as part of a consumer group. An offset is committed
// only after its message was handled or parked on the dead letter topic.
type Consumer struct {
	reader  Reader
	dlq     Writer
	policy  eventbus.RetryPolicy
	metrics *metrics.Metrics
}

func NewConsumer(brokers []string, topic, groupID string, policy eventbus.RetryPolicy, m *metrics.Metrics) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(reader, newWriter(brokers, DeadLetterTopic(topic)), policy, m)
}

func newConsumer(reader Reader, dlq Writer, policy eventbus.RetryPolicy, m *metrics.Metrics) *Consumer {
	return &Consumer{reader: reader, dlq: dlq, policy: policy, metrics: m}
}

// Consume runs until ctx is done, the reader is closed, or a message can be
// neither handled nor dead-lettered.
func (c *Consumer) Consume(ctx context.Context, handler eventbus.MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return err
			}
			log.Error().Err(err).Msg("Error reading message")
			continue
		}

		logger := log.With().Str("topic", msg.Topic).Int("partition", msg.Partition).Int64("offset", msg.Offset).Logger()

		attempts, err := c.policy.Handle(ctx, handler, msg.Key, msg.Value)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error().
				Err(err).
				Int("attempts", attempts).
				Bool("permanent", eventbus.IsPermanent(err)).
				Msg("Dead-lettering order created event")
			if dlqErr := c.deadLetter(ctx, msg, attempts, err); dlqErr != nil {
				return dlqErr
			}
			c.metrics.RecordConsumed(Transport, metrics.ResultDeadLettered)
		} else {
			c.metrics.RecordConsumed(Transport, metrics.ResultAcked)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error().Err(err).Msg("Failed to commit offset")
		}
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, attempts int, cause error) error {
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "x-error", Value: []byte(cause.Error())},
			kafka.Header{Key: "x-attempts", Value: []byte(strconv.Itoa(attempts))},
			kafka.Header{Key: "x-original-topic", Value: []byte(msg.Topic)},
			kafka.Header{Key: "x-original-offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		),
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter message at offset %d: %w", msg.Offset, err)
	}
	return nil
}

func (c *Consumer) Close() error {
	return errors.Join(c.reader.Close(), c.dlq.Close())
}
