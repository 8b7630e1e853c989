package inventory

import (
	"context"
	"fmt"

	"github.com/example/ec-order-events/internal/apperror"
	"github.com/rs/zerolog/log"
)

var ErrInvalidQuantity = apperror.Validation("quantity must be positive")

// Store is the persistence side of the ledger.
// DecrementStock must be a single conditional update: it reports false,
// without changing anything, when the product has less than quantity in stock.
type Store interface {
	DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error)
	GetStock(ctx context.Context, productID int64) (int, error)
}

// InsufficientStockError names the product that could not cover a request.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return apperror.ErrInsufficientStock
}

// Demand is one requested line against a product.
type Demand struct {
	ProductID   int64
	ProductName string
	Quantity    int
}

type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Verify checks every demand against a stock snapshot before anything is mutated.
// Demands for the same product accumulate, so two lines of 3 against a stock of 5 fail
// on the second line.
func Verify(demands []Demand, available map[int64]int) error {
	requested := make(map[int64]int, len(demands))
	for _, d := range demands {
		if d.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		requested[d.ProductID] += d.Quantity
		if stock := available[d.ProductID]; stock < requested[d.ProductID] {
			return &InsufficientStockError{
				ProductID:   d.ProductID,
				ProductName: d.ProductName,
				Available:   stock,
				Requested:   requested[d.ProductID],
			}
		}
	}
	return nil
}

// DecrementStock atomically takes quantity units of a product.
// On a lost race the live stock is re-read for the error.
func (l *Ledger) DecrementStock(ctx context.Context, d Demand) error {
	if d.Quantity <= 0 {
		return ErrInvalidQuantity
	}

	ok, err := l.store.DecrementStock(ctx, d.ProductID, d.Quantity)
	if err != nil {
		return apperror.Persistence(fmt.Sprintf("failed to decrement stock for product %d", d.ProductID), err)
	}
	if ok {
		log.Debug().Int64("productId", d.ProductID).Int("quantity", d.Quantity).Msg("Stock decremented")
		return nil
	}

	available, err := l.store.GetStock(ctx, d.ProductID)
	if err != nil {
		if apperror.IsClassified(err) {
			return err
		}
		return apperror.Persistence(fmt.Sprintf("failed to read stock for product %d", d.ProductID), err)
	}
	return &InsufficientStockError{
		ProductID:   d.ProductID,
		ProductName: d.ProductName,
		Available:   available,
		Requested:   d.Quantity,
	}
}

// DecrementAll applies each demand in submission order and stops at the first failure.
// Callers run it inside a transaction so earlier decrements roll back with it.
func (l *Ledger) DecrementAll(ctx context.Context, demands []Demand) error {
	for _, d := range demands {
		if err := l.DecrementStock(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
