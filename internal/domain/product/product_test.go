package product_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ec-order-events/internal/apperror"
	"github.com/example/ec-order-events/internal/domain/product"
	"github.com/example/ec-order-events/internal/infrastructure/store/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProductService() (*product.Service, *mocks.MockOrderDB, *mocks.MockCache) {
	db := mocks.NewMockOrderDB()
	cache := mocks.NewMockCache()
	return product.NewService(db.Products(), cache), db, cache
}

// ============================================
// Create Product Tests
// ============================================

func TestService_Create_ValidProduct(t *testing.T) {
	service, db, _ := newTestProductService()
	ctx := context.Background()

	p, err := service.Create(ctx, "  Wireless Mouse ", "Ergonomic", decimal.RequireFromString("29.990"), 50)

	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, "Wireless Mouse", p.Name)
	assert.Equal(t, "29.99", p.Price.StringFixed(2))
	assert.Equal(t, 50, db.Stock(p.ID))
}

func TestService_Create_MaxPrice(t *testing.T) {
	service, _, _ := newTestProductService()

	p, err := service.Create(context.Background(), "Server Rack", "", decimal.RequireFromString("99999999.99"), 1)

	require.NoError(t, err)
	assert.True(t, p.Price.Equal(product.MaxAmount))
}

func TestService_Create_ZeroStock(t *testing.T) {
	service, _, _ := newTestProductService()

	p, err := service.Create(context.Background(), "Cable", "", decimal.NewFromInt(5), 0)

	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
}

func TestService_Create_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		pName   string
		price   decimal.Decimal
		stock   int
		wantErr error
	}{
		{"empty name", "", decimal.NewFromInt(10), 1, product.ErrInvalidName},
		{"blank name", "   ", decimal.NewFromInt(10), 1, product.ErrInvalidName},
		{"zero price", "Mouse", decimal.Zero, 1, product.ErrInvalidPrice},
		{"negative price", "Mouse", decimal.NewFromInt(-1), 1, product.ErrInvalidPrice},
		{"price rounds to zero", "Sticker", decimal.RequireFromString("0.004"), 1, product.ErrPricePrecision},
		{"price with three decimals", "Mouse", decimal.RequireFromString("29.999"), 1, product.ErrPricePrecision},
		{"price too large", "Yacht", decimal.NewFromInt(100_000_000), 1, product.ErrPriceTooLarge},
		{"negative stock", "Mouse", decimal.NewFromInt(10), -1, product.ErrInvalidStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, _, _ := newTestProductService()

			p, err := service.Create(context.Background(), tt.pName, "", tt.price, tt.stock)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Nil(t, p)
		})
	}
}

// ============================================
// Read Tests
// ============================================

func TestService_Get_NotFound(t *testing.T) {
	service, _, _ := newTestProductService()

	p, err := service.Get(context.Background(), 42)

	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Nil(t, p)
}

func TestService_Get_CachesResult(t *testing.T) {
	service, db, cache := newTestProductService()
	ctx := context.Background()
	id := db.AddProduct(product.Product{Name: "Keyboard", Price: decimal.RequireFromString("79.99"), Stock: 3})

	first, err := service.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, cache.Has("products:1"))

	db.Products().SetStock(id, 0)
	second, err := service.Get(ctx, id)

	require.NoError(t, err)
	assert.Equal(t, first.Stock, second.Stock)
	assert.True(t, first.Price.Equal(second.Price))
}

func TestService_List_ServedFromCacheUntilInvalidated(t *testing.T) {
	service, db, _ := newTestProductService()
	ctx := context.Background()
	db.AddProduct(product.Product{Name: "A", Price: decimal.NewFromInt(1), Stock: 1})

	products, err := service.List(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)

	db.AddProduct(product.Product{Name: "B", Price: decimal.NewFromInt(2), Stock: 1})
	products, err = service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 1)

	service.Invalidate(ctx)
	products, err = service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestService_Create_InvalidatesListing(t *testing.T) {
	service, _, cache := newTestProductService()
	ctx := context.Background()

	_, err := service.List(ctx)
	require.NoError(t, err)
	require.True(t, cache.Has("products:all"))

	_, err = service.Create(ctx, "Monitor", "", decimal.NewFromInt(199), 4)

	require.NoError(t, err)
	assert.False(t, cache.Has("products:all"))
}

func TestService_CacheErrorFallsBackToStore(t *testing.T) {
	service, db, cache := newTestProductService()
	id := db.AddProduct(product.Product{Name: "Headset", Price: decimal.NewFromInt(50), Stock: 2})
	cache.GetErr = errors.New("redis down")

	p, err := service.Get(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, "Headset", p.Name)
}

func TestService_WithoutCache(t *testing.T) {
	db := mocks.NewMockOrderDB()
	service := product.NewService(db.Products(), nil)
	db.AddProduct(product.Product{Name: "Webcam", Price: decimal.NewFromInt(60), Stock: 1})

	products, err := service.List(context.Background())

	require.NoError(t, err)
	assert.Len(t, products, 1)
	service.Invalidate(context.Background(), 1)
}

// ============================================
// Cache Consistency Tests
// ============================================

// blockingRepo holds List until release is closed.
type blockingRepo struct {
	product.Repository
	started chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func newBlockingRepo(inner product.Repository) *blockingRepo {
	return &blockingRepo{
		Repository: inner,
		started:    make(chan struct{}, 4),
		release:    make(chan struct{}),
		ctxErr:     make(chan error, 4),
	}
}

func (r *blockingRepo) List(ctx context.Context) ([]*product.Product, error) {
	r.started <- struct{}{}
	<-r.release
	r.ctxErr <- ctx.Err()
	return r.Repository.List(ctx)
}

func TestService_List_InvalidationDuringReadIsNotOverwritten(t *testing.T) {
	db := mocks.NewMockOrderDB()
	cache := mocks.NewMockCache()
	repo := newBlockingRepo(db.Products())
	service := product.NewService(repo, cache)
	ctx := context.Background()
	db.AddProduct(product.Product{Name: "Mouse", Price: decimal.NewFromInt(10), Stock: 5})

	done := make(chan error, 1)
	go func() {
		_, err := service.List(ctx)
		done <- err
	}()
	<-repo.started

	service.Invalidate(ctx, 1)
	close(repo.release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("List did not return")
	}
	assert.False(t, cache.Has("products:all"))

	_, err := service.List(ctx)
	require.NoError(t, err)
	assert.True(t, cache.Has("products:all"))
}

func TestService_List_CallerCancellationDoesNotCancelSharedRead(t *testing.T) {
	db := mocks.NewMockOrderDB()
	cache := mocks.NewMockCache()
	repo := newBlockingRepo(db.Products())
	service := product.NewService(repo, cache)
	db.AddProduct(product.Product{Name: "Mouse", Price: decimal.NewFromInt(10), Stock: 5})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := service.List(ctx)
		done <- err
	}()
	<-repo.started

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("List did not return after cancellation")
	}

	close(repo.release)
	select {
	case err := <-repo.ctxErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("store read did not finish")
	}
	assert.Eventually(t, func() bool { return cache.Has("products:all") }, time.Second, 5*time.Millisecond)
}
