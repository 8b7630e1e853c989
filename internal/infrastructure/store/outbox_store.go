package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/ec-order-events/internal/apperror"
	"github.com/example/ec-order-events/internal/domain/order"
	"github.com/jmoiron/sqlx"
)

// OutboxStore keeps OrderCreated events in order_events until a broker accepts them.
type OutboxStore struct {
	db *sqlx.DB
}

func NewOutboxStore(db *sqlx.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Enqueue stores evt. Called inside the order transaction.
func (s *OutboxStore) Enqueue(ctx context.Context, evt order.OrderCreated) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO order_events (id, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, evt.EventID, evt.OrderID, order.EventOrderCreated, payload, evt.CreatedAt)
	return apperror.Persistence("failed to insert order event", err)
}

func (s *OutboxStore) MarkPublished(ctx context.Context, eventID string) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE order_events SET published_at = NOW() WHERE id = $1 AND published_at IS NULL`, eventID)
	return apperror.Persistence("failed to mark event published", err)
}

// Pending returns up to limit unpublished events, oldest first.
func (s *OutboxStore) Pending(ctx context.Context, limit int) ([]order.OrderCreated, error) {
	var payloads [][]byte
	err := conn(ctx, s.db).SelectContext(ctx, &payloads, `
		SELECT payload FROM order_events
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperror.Persistence("failed to load pending events", err)
	}

	events := make([]order.OrderCreated, 0, len(payloads))
	for _, p := range payloads {
		var evt order.OrderCreated
		if err := json.Unmarshal(p, &evt); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stored event: %w", err)
		}
		events = append(events, evt)
	}
	return events, nil
}

func (s *OutboxStore) RecordFailure(ctx context.Context, eventID, reason string) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE order_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, eventID, reason)
	return apperror.Persistence("failed to record publish failure", err)
}
