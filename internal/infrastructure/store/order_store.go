package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ec-order-events/internal/apperror"
	"github.com/example/ec-order-events/internal/domain/order"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const orderColumns = `id, customer_id, total_amount, COALESCE(shipping_address, '') AS shipping_address, created_at`

// OrderStore implements order.Store on PostgreSQL.
type OrderStore struct {
	db *sqlx.DB
	tx *TxManager
}

func NewOrderStore(db *sqlx.DB, tx *TxManager) *OrderStore {
	return &OrderStore{db: db, tx: tx}
}

// Save inserts the order header and every line in one transaction, joining the
// caller's transaction when there is one. Generated ids are written back into o.
func (s *OrderStore) Save(ctx context.Context, o *order.Order) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := conn(ctx, s.db)
		err := q.QueryRowxContext(ctx, `
			INSERT INTO orders (customer_id, total_amount, shipping_address, created_at)
			VALUES ($1, $2, NULLIF($3, ''), $4)
			RETURNING id
		`, o.CustomerID, o.TotalAmount, o.ShippingAddress, o.CreatedAt).Scan(&o.ID)
		if err != nil {
			return apperror.Persistence("failed to insert order", err)
		}

		for i := range o.Items {
			line := &o.Items[i]
			line.OrderID = o.ID
			err := q.QueryRowxContext(ctx, `
				INSERT INTO order_items (order_id, product_id, product_name, quantity, price)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id
			`, line.OrderID, line.ProductID, line.ProductName, line.Quantity, line.Price).Scan(&line.ID)
			if err != nil {
				return apperror.Persistence(fmt.Sprintf("failed to insert line %d of order", i+1), err)
			}
		}
		return nil
	})
}

func (s *OrderStore) Get(ctx context.Context, id int64) (*order.Order, error) {
	var o order.Order
	err := conn(ctx, s.db).GetContext(ctx, &o, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, apperror.Persistence(fmt.Sprintf("failed to get order %d", id), err)
	}

	orders := []*order.Order{&o}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &o, nil
}

// List returns all orders newest first.
func (s *OrderStore) List(ctx context.Context) ([]*order.Order, error) {
	return s.selectOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC`)
}

func (s *OrderStore) ListByCustomer(ctx context.Context, customerID int64) ([]*order.Order, error) {
	return s.selectOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`, customerID)
}

func (s *OrderStore) selectOrders(ctx context.Context, query string, args ...any) ([]*order.Order, error) {
	orders := []*order.Order{}
	if err := conn(ctx, s.db).SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, apperror.Persistence("failed to list orders", err)
	}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the lines of all given orders with one query.
func (s *OrderStore) attachItems(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		o.Items = []order.OrderLine{}
		byID[o.ID] = o
	}

	var lines []order.OrderLine
	err := conn(ctx, s.db).SelectContext(ctx, &lines, `
		SELECT id, order_id, product_id, product_name, quantity, price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return apperror.Persistence("failed to load order items", err)
	}
	for _, line := range lines {
		if o, ok := byID[line.OrderID]; ok {
			o.Items = append(o.Items, line)
		}
	}
	return nil
}
