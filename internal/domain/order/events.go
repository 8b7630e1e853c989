package order

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const EventOrderCreated = "OrderCreated"

// OrderCreated is the fact published once an order is committed.
type OrderCreated struct {
	EventID         string             `json:"eventId"`
	OrderID         int64              `json:"orderId"`
	CustomerID      int64              `json:"customerId"`
	TotalAmount     decimal.Decimal    `json:"totalAmount"`
	ShippingAddress string             `json:"shippingAddress,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	Items           []OrderCreatedItem `json:"items"`
}

type OrderCreatedItem struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

func (e OrderCreated) MarshalJSON() ([]byte, error) {
	type alias OrderCreated
	return json.Marshal(struct {
		alias
		TotalAmount string `json:"totalAmount"`
	}{alias(e), e.TotalAmount.StringFixed(2)})
}

func (i OrderCreatedItem) MarshalJSON() ([]byte, error) {
	type alias OrderCreatedItem
	return json.Marshal(struct {
		alias
		Price string `json:"price"`
	}{alias(i), i.Price.StringFixed(2)})
}

// NewOrderCreated builds the event for a persisted order with a fresh event id.
func NewOrderCreated(o *Order) OrderCreated {
	items := make([]OrderCreatedItem, 0, len(o.Items))
	for _, line := range o.Items {
		items = append(items, OrderCreatedItem{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			Price:       line.Price,
		})
	}
	return OrderCreated{
		EventID:         uuid.New().String(),
		OrderID:         o.ID,
		CustomerID:      o.CustomerID,
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		CreatedAt:       o.CreatedAt,
		Items:           items,
	}
}
