package readmodel

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CustomerOrder is the customer service's denormalized copy of a placed order.
// OrderID is the natural key: at most one row per order.
type CustomerOrder struct {
	ID              int64           `json:"id" gorm:"primaryKey"`
	CustomerID      int64           `json:"customerId" gorm:"not null;index"`
	OrderID         int64           `json:"orderId" gorm:"not null;uniqueIndex"`
	EventID         string          `json:"-" gorm:"size:36"`
	TotalAmount     decimal.Decimal `json:"totalAmount" gorm:"type:numeric(10,2);not null"`
	ShippingAddress string          `json:"shippingAddress,omitempty" gorm:"size:500"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// MarshalJSON writes the total with exactly two decimal places.
func (c CustomerOrder) MarshalJSON() ([]byte, error) {
	type alias CustomerOrder
	return json.Marshal(struct {
		alias
		TotalAmount string `json:"totalAmount"`
	}{alias(c), c.TotalAmount.StringFixed(2)})
}

func (CustomerOrder) TableName() string {
	return "customer_orders"
}
