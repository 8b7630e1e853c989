package command

import (
	"context"
	"errors"

	"github.com/example/ec-order-events/internal/apperror"
	"github.com/example/ec-order-events/internal/domain/customer"
	"github.com/example/ec-order-events/internal/domain/order"
	"github.com/example/ec-order-events/internal/domain/product"
	"github.com/example/ec-order-events/internal/metrics"
)

// Handler executes the order service's write operations.
type Handler struct {
	productSvc *product.Service
	orderSvc   *order.Service
	metrics    *metrics.Metrics
}

func NewHandler(productSvc *product.Service, orderSvc *order.Service, m *metrics.Metrics) *Handler {
	return &Handler{
		productSvc: productSvc,
		orderSvc:   orderSvc,
		metrics:    m,
	}
}

// CreateProduct adds a product to the catalog
func (h *Handler) CreateProduct(ctx context.Context, cmd CreateProduct) (*product.Product, error) {
	return h.productSvc.Create(ctx, cmd.Name, cmd.Description, cmd.Price, cmd.Stock)
}

// PlaceOrder places an order and drops the cached entries of the ordered
// products, whose stock just changed.
func (h *Handler) PlaceOrder(ctx context.Context, cmd PlaceOrder) (*order.Order, error) {
	items := make([]order.Item, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		items = append(items, order.Item{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	o, err := h.orderSvc.Place(ctx, order.PlaceOrder{
		CustomerID:      cmd.CustomerID,
		Items:           items,
		ShippingAddress: cmd.ShippingAddress,
	})
	if err != nil {
		h.metrics.RecordOrderRejected(rejectReason(err))
		return nil, err
	}
	h.metrics.RecordOrderPlaced()

	ids := make([]int64, 0, len(o.Items))
	for _, line := range o.Items {
		ids = append(ids, line.ProductID)
	}
	h.productSvc.Invalidate(ctx, ids...)

	return o, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, apperror.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, apperror.ErrValidation):
		return "validation"
	case errors.Is(err, apperror.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperror.ErrPersistence):
		return "persistence"
	default:
		return "other"
	}
}

// CustomerHandler executes the customer service's write operations.
type CustomerHandler struct {
	customerSvc *customer.Service
}

func NewCustomerHandler(customerSvc *customer.Service) *CustomerHandler {
	return &CustomerHandler{customerSvc: customerSvc}
}

func (h *CustomerHandler) RegisterCustomer(ctx context.Context, cmd RegisterCustomer) (*customer.Customer, error) {
	return h.customerSvc.Create(ctx, customer.Registration{
		Name:    cmd.Name,
		Email:   cmd.Email,
		Phone:   cmd.Phone,
		Address: cmd.Address,
		City:    cmd.City,
		ZipCode: cmd.ZipCode,
	})
}
