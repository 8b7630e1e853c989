package query

import (
	"context"

	"github.com/example/ec-order-events/internal/domain/customer"
	"github.com/example/ec-order-events/internal/domain/order"
	"github.com/example/ec-order-events/internal/domain/product"
	"github.com/example/ec-order-events/internal/readmodel"
)

// Handler serves the order service's reads.
type Handler struct {
	productSvc *product.Service
	orderSvc   *order.Service
}

func NewHandler(productSvc *product.Service, orderSvc *order.Service) *Handler {
	return &Handler{productSvc: productSvc, orderSvc: orderSvc}
}

// Products
func (h *Handler) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	return h.productSvc.Get(ctx, id)
}

func (h *Handler) ListProducts(ctx context.Context) ([]*product.Product, error) {
	return h.productSvc.List(ctx)
}

// Orders
func (h *Handler) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	return h.orderSvc.Get(ctx, id)
}

// ListOrders returns every order, newest first.
func (h *Handler) ListOrders(ctx context.Context) ([]*order.Order, error) {
	return h.orderSvc.List(ctx)
}

func (h *Handler) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]*order.Order, error) {
	return h.orderSvc.ListByCustomer(ctx, customerID)
}

// CustomerHandler serves the customer service's reads.
type CustomerHandler struct {
	customerSvc *customer.Service
}

func NewCustomerHandler(customerSvc *customer.Service) *CustomerHandler {
	return &CustomerHandler{customerSvc: customerSvc}
}

func (h *CustomerHandler) GetCustomer(ctx context.Context, id int64) (*customer.Customer, error) {
	return h.customerSvc.Get(ctx, id)
}

func (h *CustomerHandler) GetCustomerByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	return h.customerSvc.FindByEmail(ctx, email)
}

func (h *CustomerHandler) ListCustomers(ctx context.Context) ([]*customer.Customer, error) {
	return h.customerSvc.List(ctx)
}

// CustomerOrders returns the projected order history. Unknown customers are not found.
func (h *CustomerHandler) CustomerOrders(ctx context.Context, customerID int64) ([]*readmodel.CustomerOrder, error) {
	return h.customerSvc.Orders(ctx, customerID)
}
