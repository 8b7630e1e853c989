package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/ec-order-events/internal/apperror"
	"github.com/example/ec-order-events/internal/domain/customer"
	"github.com/example/ec-order-events/internal/domain/order"
	"github.com/example/ec-order-events/internal/eventbus"
	"github.com/example/ec-order-events/internal/metrics"
	"github.com/example/ec-order-events/internal/readmodel"
	"github.com/rs/zerolog/log"
)

type CustomerLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// Store writes customer orders. InsertIfAbsent reports created=false when a row
// for the same OrderID already exists, and must hold under concurrent inserts.
type Store interface {
	InsertIfAbsent(ctx context.Context, co *readmodel.CustomerOrder) (bool, error)
}

// Projector materializes OrderCreated events into the customer's order history.
type Projector struct {
	customers CustomerLookup
	orders    Store
	metrics   *metrics.Metrics
}

func NewProjector(customers CustomerLookup, orders Store, m *metrics.Metrics) *Projector {
	return &Projector{customers: customers, orders: orders, metrics: m}
}

// HandleEvent is an eventbus.MessageHandler.
//
// Malformed payloads fail permanently. An unknown customer is retried, since the
// customer may not be visible yet.
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var evt order.OrderCreated
	if err := json.Unmarshal(value, &evt); err != nil {
		return eventbus.Permanent(apperror.Projection("malformed order created payload", err))
	}
	if evt.OrderID <= 0 || evt.CustomerID <= 0 {
		return eventbus.Permanent(apperror.Projection("invalid order created payload",
			fmt.Errorf("orderId=%d customerId=%d", evt.OrderID, evt.CustomerID)))
	}

	logger := log.With().
		Int64("orderId", evt.OrderID).
		Int64("customerId", evt.CustomerID).
		Str("eventId", evt.EventID).
		Logger()
	logger.Debug().Msg("Received order created event")

	exists, err := p.customers.Exists(ctx, evt.CustomerID)
	if err != nil {
		return apperror.Projection("failed to look up customer", err)
	}
	if !exists {
		return apperror.Projection(fmt.Sprintf("customer %d", evt.CustomerID), customer.ErrCustomerNotFound)
	}

	created, err := p.orders.InsertIfAbsent(ctx, &readmodel.CustomerOrder{
		CustomerID:      evt.CustomerID,
		OrderID:         evt.OrderID,
		EventID:         evt.EventID,
		TotalAmount:     evt.TotalAmount,
		ShippingAddress: evt.ShippingAddress,
		CreatedAt:       evt.CreatedAt,
	})
	if err != nil {
		return apperror.Projection("failed to write customer order", err)
	}

	if created {
		p.metrics.RecordProjection(metrics.ResultCreated)
		logger.Info().Str("totalAmount", evt.TotalAmount.StringFixed(2)).Msg("Customer order projected")
	} else {
		p.metrics.RecordProjection(metrics.ResultDuplicate)
		logger.Info().Msg("Duplicate order created event ignored")
	}
	return nil
}
