package inventory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/example/ec-order-events/internal/apperror"
	"github.com/example/ec-order-events/internal/domain/inventory"
	"github.com/example/ec-order-events/internal/domain/product"
	"github.com/example/ec-order-events/internal/infrastructure/store/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(stock int) (*inventory.Ledger, *mocks.MockOrderDB, int64) {
	db := mocks.NewMockOrderDB()
	id := db.AddProduct(product.Product{Name: "Mouse", Price: decimal.NewFromInt(10), Stock: stock})
	return inventory.NewLedger(db.Products()), db, id
}

// ============================================
// Verify Tests
// ============================================

func TestVerify(t *testing.T) {
	tests := []struct {
		name      string
		demands   []inventory.Demand
		available map[int64]int
		wantErr   bool
	}{
		{"enough stock", []inventory.Demand{{ProductID: 1, Quantity: 3}}, map[int64]int{1: 5}, false},
		{"exact stock", []inventory.Demand{{ProductID: 1, Quantity: 5}}, map[int64]int{1: 5}, false},
		{"short by one", []inventory.Demand{{ProductID: 1, Quantity: 6}}, map[int64]int{1: 5}, true},
		{"unknown product", []inventory.Demand{{ProductID: 2, Quantity: 1}}, map[int64]int{1: 5}, true},
		{
			"duplicate lines accumulate",
			[]inventory.Demand{{ProductID: 1, Quantity: 3}, {ProductID: 1, Quantity: 3}},
			map[int64]int{1: 5},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := inventory.Verify(tt.demands, tt.available)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperror.ErrInsufficientStock)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerify_ReportsAccumulatedDemand(t *testing.T) {
	err := inventory.Verify([]inventory.Demand{
		{ProductID: 1, ProductName: "Mouse", Quantity: 2},
		{ProductID: 1, ProductName: "Mouse", Quantity: 4},
	}, map[int64]int{1: 5})

	var stockErr *inventory.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "Mouse", stockErr.ProductName)
	assert.Equal(t, 5, stockErr.Available)
	assert.Equal(t, 6, stockErr.Requested)
}

func TestVerify_RejectsNonPositiveQuantity(t *testing.T) {
	err := inventory.Verify([]inventory.Demand{{ProductID: 1, Quantity: 0}}, map[int64]int{1: 5})

	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// ============================================
// DecrementStock Tests
// ============================================

func TestLedger_DecrementStock_Success(t *testing.T) {
	ledger, db, id := newTestLedger(50)

	err := ledger.DecrementStock(context.Background(), inventory.Demand{ProductID: id, Quantity: 3})

	require.NoError(t, err)
	assert.Equal(t, 47, db.Stock(id))
}

func TestLedger_DecrementStock_Insufficient(t *testing.T) {
	ledger, db, id := newTestLedger(5)

	err := ledger.DecrementStock(context.Background(), inventory.Demand{ProductID: id, ProductName: "Mouse", Quantity: 6})

	var stockErr *inventory.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 5, stockErr.Available)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, `insufficient stock for product "Mouse": available 5, requested 6`, err.Error())
	assert.Equal(t, 5, db.Stock(id))
}

func TestLedger_DecrementStock_UnknownProduct(t *testing.T) {
	ledger, _, _ := newTestLedger(5)

	err := ledger.DecrementStock(context.Background(), inventory.Demand{ProductID: 99, Quantity: 1})

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestLedger_DecrementStock_StoreFailure(t *testing.T) {
	ledger, db, id := newTestLedger(5)
	db.DecrementErr = errors.New("connection reset")

	err := ledger.DecrementStock(context.Background(), inventory.Demand{ProductID: id, Quantity: 1})

	assert.ErrorIs(t, err, apperror.ErrPersistence)
	assert.ErrorIs(t, err, db.DecrementErr)
}

func TestLedger_DecrementStock_InvalidQuantity(t *testing.T) {
	ledger, db, id := newTestLedger(5)

	err := ledger.DecrementStock(context.Background(), inventory.Demand{ProductID: id, Quantity: -1})

	assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	assert.Empty(t, db.DecrementCalls)
}

func TestLedger_DecrementAll_StopsAtFirstFailureInOrder(t *testing.T) {
	db := mocks.NewMockOrderDB()
	a := db.AddProduct(product.Product{Name: "A", Price: decimal.NewFromInt(1), Stock: 10})
	b := db.AddProduct(product.Product{Name: "B", Price: decimal.NewFromInt(1), Stock: 1})
	c := db.AddProduct(product.Product{Name: "C", Price: decimal.NewFromInt(1), Stock: 10})
	ledger := inventory.NewLedger(db.Products())

	err := ledger.DecrementAll(context.Background(), []inventory.Demand{
		{ProductID: a, Quantity: 2},
		{ProductID: b, Quantity: 2},
		{ProductID: c, Quantity: 2},
	})

	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)
	require.Len(t, db.DecrementCalls, 2)
	assert.Equal(t, a, db.DecrementCalls[0].ProductID)
	assert.Equal(t, b, db.DecrementCalls[1].ProductID)
	assert.Equal(t, 10, db.Stock(c))
}

func TestLedger_ConcurrentDecrementsNeverOversell(t *testing.T) {
	ledger, db, id := newTestLedger(20)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.DecrementStock(context.Background(), inventory.Demand{ProductID: id, Quantity: 1}); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), succeeded.Load())
	assert.Equal(t, 0, db.Stock(id))
}
