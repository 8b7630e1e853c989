package command

import (
	"context"
	"testing"

	"github.com/example/ec-order-events/internal/apperror"
	"github.com/example/ec-order-events/internal/domain/customer"
	"github.com/example/ec-order-events/internal/domain/inventory"
	"github.com/example/ec-order-events/internal/domain/order"
	"github.com/example/ec-order-events/internal/domain/product"
	"github.com/example/ec-order-events/internal/infrastructure/store/mocks"
	"github.com/example/ec-order-events/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	handler   *Handler
	db        *mocks.MockOrderDB
	cache     *mocks.MockCache
	publisher *mocks.MockPublisher
	metrics   *metrics.Metrics
}

func newTestHandler() *testEnv {
	db := mocks.NewMockOrderDB()
	cache := mocks.NewMockCache()
	publisher := mocks.NewMockPublisher()
	m := metrics.New("order-service")

	products := db.Products()
	productSvc := product.NewService(products, cache)
	orderSvc := order.NewService(products, inventory.NewLedger(products), db.Orders(), db.Outbox(), db, publisher)

	return &testEnv{
		handler:   NewHandler(productSvc, orderSvc, m),
		db:        db,
		cache:     cache,
		publisher: publisher,
		metrics:   m,
	}
}

// ============================================
// Create Product Tests
// ============================================

func TestHandler_CreateProduct_Success(t *testing.T) {
	env := newTestHandler()

	p, err := env.handler.CreateProduct(context.Background(), CreateProduct{
		Name:        "Test Product",
		Description: "A test product",
		Price:       decimal.RequireFromString("10.00"),
		Stock:       50,
	})

	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, "Test Product", p.Name)
	assert.Equal(t, 50, env.db.Stock(p.ID))
}

func TestHandler_CreateProduct_InvalidPrice(t *testing.T) {
	env := newTestHandler()

	p, err := env.handler.CreateProduct(context.Background(), CreateProduct{Name: "Freebie", Price: decimal.Zero, Stock: 1})

	assert.ErrorIs(t, err, product.ErrInvalidPrice)
	assert.Nil(t, p)
}

// ============================================
// Place Order Tests
// ============================================

func TestHandler_PlaceOrder_Success(t *testing.T) {
	env := newTestHandler()
	ctx := context.Background()
	id := env.db.AddProduct(product.Product{Name: "Wireless Mouse", Price: decimal.RequireFromString("10.00"), Stock: 50})

	// Warm the cache so the invalidation is observable.
	_, err := env.handler.productSvc.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, env.cache.Has("products:1"))

	o, err := env.handler.PlaceOrder(ctx, PlaceOrder{
		CustomerID: 1,
		Items:      []OrderItem{{ProductID: id, Quantity: 3}},
	})

	require.NoError(t, err)
	assert.Equal(t, "30.00", o.TotalAmount.StringFixed(2))
	assert.Equal(t, 47, env.db.Stock(id))
	assert.Equal(t, 1, env.publisher.Calls())
	assert.False(t, env.cache.Has("products:1"))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.OrdersPlaced))
}

func TestHandler_PlaceOrder_RecordsRejectReason(t *testing.T) {
	tests := []struct {
		name   string
		cmd    func(productID int64) PlaceOrder
		reason string
	}{
		{
			name:   "empty order",
			cmd:    func(int64) PlaceOrder { return PlaceOrder{CustomerID: 1} },
			reason: "validation",
		},
		{
			name: "unknown product",
			cmd: func(int64) PlaceOrder {
				return PlaceOrder{CustomerID: 1, Items: []OrderItem{{ProductID: 999, Quantity: 1}}}
			},
			reason: "not_found",
		},
		{
			name: "insufficient stock",
			cmd: func(id int64) PlaceOrder {
				return PlaceOrder{CustomerID: 1, Items: []OrderItem{{ProductID: id, Quantity: 6}}}
			},
			reason: "insufficient_stock",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestHandler()
			id := env.db.AddProduct(product.Product{Name: "Keyboard", Price: decimal.NewFromInt(5), Stock: 5})

			o, err := env.handler.PlaceOrder(context.Background(), tt.cmd(id))

			assert.Error(t, err)
			assert.Nil(t, o)
			assert.Equal(t, 5, env.db.Stock(id))
			assert.Zero(t, env.publisher.Calls())
			assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.OrdersRejected.WithLabelValues(tt.reason)))
			assert.Zero(t, testutil.ToFloat64(env.metrics.OrdersPlaced))
		})
	}
}

func TestRejectReason(t *testing.T) {
	assert.Equal(t, "persistence", rejectReason(apperror.Persistence("x", assert.AnError)))
	assert.Equal(t, "other", rejectReason(assert.AnError))
}

// ============================================
// Register Customer Tests
// ============================================

func TestCustomerHandler_RegisterCustomer(t *testing.T) {
	db := mocks.NewMockCustomerDB()
	handler := NewCustomerHandler(customer.NewService(db.Customers(), db.CustomerOrders()))

	c, err := handler.RegisterCustomer(context.Background(), RegisterCustomer{
		Name:    "Hanako",
		Email:   " Hanako@Example.com ",
		Address: "1-1 Chiyoda",
		City:    "Tokyo",
		ZipCode: "100-0001",
	})

	require.NoError(t, err)
	assert.NotZero(t, c.ID)
	assert.Equal(t, "hanako@example.com", c.Email)

	_, err = handler.RegisterCustomer(context.Background(), RegisterCustomer{
		Name: "Other", Email: "hanako@example.com", Address: "a", City: "b", ZipCode: "c",
	})
	assert.ErrorIs(t, err, customer.ErrEmailTaken)
}
