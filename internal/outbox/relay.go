// Package outbox republishes OrderCreated events that were committed with their
// order but never confirmed by the broker.
package outbox

import (
	"context"
	"time"

	"github.com/example/ec-order-events/internal/domain/order"
	"github.com/example/ec-order-events/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	reasonUnrouted = "not routed to any queue"

	defaultInterval  = 10 * time.Second
	defaultBatchSize = 100
)

// Store is the relay's view of the outbox table.
type Store interface {
	Pending(ctx context.Context, limit int) ([]order.OrderCreated, error)
	MarkPublished(ctx context.Context, eventID string) error
	RecordFailure(ctx context.Context, eventID, reason string) error
}

type Relay struct {
	store     Store
	publisher order.EventPublisher
	interval  time.Duration
	batchSize int
	metrics   *metrics.Metrics
}

func NewRelay(store Store, publisher order.EventPublisher, interval time.Duration, batchSize int, m *metrics.Metrics) *Relay {
	if interval <= 0 {
		interval = defaultInterval
	}
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}
	return &Relay{store: store, publisher: publisher, interval: interval, batchSize: batchSize, metrics: m}
}

// Run calls RunOnce every interval until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Msg("Outbox relay started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Outbox relay pass failed")
			}
		}
	}
}

// RunOnce publishes one batch of pending events, oldest first, and returns how
// many were delivered. A transport error ends the pass early; an unrouted event
// is recorded and skipped.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.store.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, evt := range events {
		logger := log.With().Str("eventId", evt.EventID).Int64("orderId", evt.OrderID).Logger()

		ok, err := r.publisher.PublishOrderCreated(ctx, evt)
		if err != nil {
			r.metrics.RecordRelay(metrics.ResultFailed)
			if recErr := r.store.RecordFailure(ctx, evt.EventID, err.Error()); recErr != nil {
				logger.Error().Err(recErr).Msg("Failed to record publish failure")
			}
			return delivered, err
		}
		if !ok {
			r.metrics.RecordRelay(metrics.ResultUnrouted)
			if recErr := r.store.RecordFailure(ctx, evt.EventID, reasonUnrouted); recErr != nil {
				logger.Error().Err(recErr).Msg("Failed to record publish failure")
			}
			continue
		}

		if err := r.store.MarkPublished(ctx, evt.EventID); err != nil {
			return delivered, err
		}
		r.metrics.RecordRelay(metrics.ResultDelivered)
		delivered++
		logger.Info().Msg("Relayed order created event")
	}
	return delivered, nil
}
