package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ec-order-events/internal/apperror"
	"github.com/example/ec-order-events/internal/domain/product"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const productColumns = `id, name, description, price, stock, created_at, updated_at`

// ProductStore implements product.Repository and inventory.Store on PostgreSQL.
type ProductStore struct {
	db *sqlx.DB
}

func NewProductStore(db *sqlx.DB) *ProductStore {
	return &ProductStore{db: db}
}

func (s *ProductStore) Create(ctx context.Context, p *product.Product) error {
	err := conn(ctx, s.db).QueryRowxContext(ctx, `
		INSERT INTO products (name, description, price, stock)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, p.Name, p.Description, p.Price, p.Stock).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return apperror.Persistence("failed to create product", err)
}

func (s *ProductStore) Get(ctx context.Context, id int64) (*product.Product, error) {
	var p product.Product
	err := conn(ctx, s.db).GetContext(ctx, &p, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, product.ErrProductNotFound
	}
	if err != nil {
		return nil, apperror.Persistence(fmt.Sprintf("failed to get product %d", id), err)
	}
	return &p, nil
}

// List returns the catalog newest first.
func (s *ProductStore) List(ctx context.Context) ([]*product.Product, error) {
	products := []*product.Product{}
	err := conn(ctx, s.db).SelectContext(ctx, &products,
		`SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, apperror.Persistence("failed to list products", err)
	}
	return products, nil
}

// FindByIDs loads all requested products in one query. Missing ids are simply absent.
func (s *ProductStore) FindByIDs(ctx context.Context, ids []int64) ([]*product.Product, error) {
	products := []*product.Product{}
	if len(ids) == 0 {
		return products, nil
	}
	err := conn(ctx, s.db).SelectContext(ctx, &products,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return nil, apperror.Persistence("failed to load products", err)
	}
	return products, nil
}

// DecrementStock takes quantity units in one conditional update.
// It reports false when the row is missing or holds less than quantity.
func (s *ProductStore) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	result, err := conn(ctx, s.db).ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1
	`, quantity, productID)
	if err != nil {
		return false, fmt.Errorf("error updating stock for product %d: %w", productID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected for product %d: %w", productID, err)
	}
	return rowsAffected == 1, nil
}

func (s *ProductStore) GetStock(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := conn(ctx, s.db).GetContext(ctx, &stock, `SELECT stock FROM products WHERE id = $1`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, product.ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("error reading stock for product %d: %w", productID, err)
	}
	return stock, nil
}
