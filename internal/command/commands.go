package command

import "github.com/shopspring/decimal"

// Product Commands
type CreateProduct struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" binding:"gte=0"`
}

// Order Commands
type PlaceOrder struct {
	CustomerID      int64       `json:"customerId" binding:"required"`
	Items           []OrderItem `json:"items" binding:"required,dive"`
	ShippingAddress string      `json:"shippingAddress" binding:"max=500"`
}

type OrderItem struct {
	ProductID int64 `json:"productId" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required"`
}

// Customer Commands
type RegisterCustomer struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Phone   string `json:"phone" binding:"max=20"`
	Address string `json:"address" binding:"required"`
	City    string `json:"city" binding:"required"`
	ZipCode string `json:"zipCode" binding:"required"`
}
