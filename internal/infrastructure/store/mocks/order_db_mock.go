package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ec-order-events/internal/domain/order"
	"github.com/example/ec-order-events/internal/domain/product"
)

// MockOrderDB is an in-memory stand-in for the order service database.
// WithinTx snapshots all tables and restores them when fn fails. Transactions
// are not isolated from each other.
type MockOrderDB struct {
	mu       sync.Mutex
	products map[int64]product.Product
	orders   map[int64]order.Order
	outbox   []OutboxRecord

	nextProductID int64
	nextOrderID   int64
	nextLineID    int64

	// For tracking calls in tests
	TxCalls        int
	DecrementCalls []DecrementCall
	FindCalls      [][]int64

	// Errors injected by tests
	FindErr      error
	SaveErr      error
	EnqueueErr   error
	DecrementErr error
}

type DecrementCall struct {
	ProductID int64
	Quantity  int
}

// OutboxRecord is a stored event plus its delivery state.
type OutboxRecord struct {
	Event     order.OrderCreated
	Published bool
	Attempts  int
	LastError string
}

func NewMockOrderDB() *MockOrderDB {
	return &MockOrderDB{
		products: make(map[int64]product.Product),
		orders:   make(map[int64]order.Order),
	}
}

func (m *MockOrderDB) Products() *MockProductStore { return &MockProductStore{db: m} }
func (m *MockOrderDB) Orders() *MockOrderStore     { return &MockOrderStore{db: m} }
func (m *MockOrderDB) Outbox() *MockOutbox         { return &MockOutbox{db: m} }

// AddProduct seeds a product and returns its id.
func (m *MockOrderDB) AddProduct(p product.Product) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == 0 {
		m.nextProductID++
		p.ID = m.nextProductID
	} else if p.ID > m.nextProductID {
		m.nextProductID = p.ID
	}
	m.products[p.ID] = p
	return p.ID
}

func (m *MockOrderDB) Stock(productID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[productID].Stock
}

func (m *MockOrderDB) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// OutboxRecords returns a copy of the outbox in insertion order.
func (m *MockOrderDB) OutboxRecords() []OutboxRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OutboxRecord(nil), m.outbox...)
}

type snapshot struct {
	products    map[int64]product.Product
	orders      map[int64]order.Order
	outbox      []OutboxRecord
	nextOrderID int64
	nextLineID  int64
}

func (m *MockOrderDB) snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := snapshot{
		products:    make(map[int64]product.Product, len(m.products)),
		orders:      make(map[int64]order.Order, len(m.orders)),
		outbox:      append([]OutboxRecord(nil), m.outbox...),
		nextOrderID: m.nextOrderID,
		nextLineID:  m.nextLineID,
	}
	for id, p := range m.products {
		s.products[id] = p
	}
	for id, o := range m.orders {
		s.orders[id] = o
	}
	return s
}

func (m *MockOrderDB) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = s.products
	m.orders = s.orders
	m.outbox = s.outbox
	m.nextOrderID = s.nextOrderID
	m.nextLineID = s.nextLineID
}

// WithinTx implements order.TxRunner.
func (m *MockOrderDB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.TxCalls++
	m.mu.Unlock()

	before := m.snapshot()
	if err := fn(ctx); err != nil {
		m.restore(before)
		return err
	}
	return nil
}

// MockProductStore implements product.Repository and inventory.Store.
type MockProductStore struct {
	db *MockOrderDB
}

func (s *MockProductStore) Create(ctx context.Context, p *product.Product) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.ID = s.db.AddProduct(*p)
	return nil
}

func (s *MockProductStore) Get(ctx context.Context, id int64) (*product.Product, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	p, ok := s.db.products[id]
	if !ok {
		return nil, product.ErrProductNotFound
	}
	return &p, nil
}

func (s *MockProductStore) List(ctx context.Context) ([]*product.Product, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]*product.Product, 0, len(s.db.products))
	for _, p := range s.db.products {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MockProductStore) FindByIDs(ctx context.Context, ids []int64) ([]*product.Product, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	s.db.FindCalls = append(s.db.FindCalls, append([]int64(nil), ids...))
	if s.db.FindErr != nil {
		return nil, s.db.FindErr
	}
	var out []*product.Product
	for _, id := range ids {
		if p, ok := s.db.products[id]; ok {
			out = append(out, &p)
		}
	}
	return out, nil
}

func (s *MockProductStore) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	s.db.DecrementCalls = append(s.db.DecrementCalls, DecrementCall{ProductID: productID, Quantity: quantity})
	if s.db.DecrementErr != nil {
		return false, s.db.DecrementErr
	}
	p, ok := s.db.products[productID]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	p.UpdatedAt = time.Now().UTC()
	s.db.products[productID] = p
	return true, nil
}

func (s *MockProductStore) GetStock(ctx context.Context, productID int64) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	p, ok := s.db.products[productID]
	if !ok {
		return 0, product.ErrProductNotFound
	}
	return p.Stock, nil
}

// SetStock overrides stock, e.g. to simulate a concurrent order between check and decrement.
func (s *MockProductStore) SetStock(productID int64, stock int) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p := s.db.products[productID]
	p.Stock = stock
	s.db.products[productID] = p
}

// MockOrderStore implements order.Store.
type MockOrderStore struct {
	db *MockOrderDB
}

func (s *MockOrderStore) Save(ctx context.Context, o *order.Order) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if s.db.SaveErr != nil {
		return s.db.SaveErr
	}
	s.db.nextOrderID++
	o.ID = s.db.nextOrderID
	for i := range o.Items {
		s.db.nextLineID++
		o.Items[i].ID = s.db.nextLineID
		o.Items[i].OrderID = o.ID
	}
	stored := *o
	stored.Items = append([]order.OrderLine(nil), o.Items...)
	s.db.orders[o.ID] = stored
	return nil
}

func (s *MockOrderStore) Get(ctx context.Context, id int64) (*order.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	o, ok := s.db.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (s *MockOrderStore) List(ctx context.Context) ([]*order.Order, error) {
	return s.filter(func(order.Order) bool { return true }), nil
}

func (s *MockOrderStore) ListByCustomer(ctx context.Context, customerID int64) ([]*order.Order, error) {
	return s.filter(func(o order.Order) bool { return o.CustomerID == customerID }), nil
}

// filter returns matching orders newest first.
func (s *MockOrderStore) filter(keep func(order.Order) bool) []*order.Order {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]*order.Order, 0)
	for _, o := range s.db.orders {
		if keep(o) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func copyOrder(o order.Order) *order.Order {
	o.Items = append([]order.OrderLine(nil), o.Items...)
	return &o
}

// MockOutbox implements order.Outbox and the relay's store.
type MockOutbox struct {
	db *MockOrderDB
}

func (s *MockOutbox) Enqueue(ctx context.Context, evt order.OrderCreated) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if s.db.EnqueueErr != nil {
		return s.db.EnqueueErr
	}
	s.db.outbox = append(s.db.outbox, OutboxRecord{Event: evt})
	return nil
}

func (s *MockOutbox) MarkPublished(ctx context.Context, eventID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for i := range s.db.outbox {
		if s.db.outbox[i].Event.EventID == eventID {
			s.db.outbox[i].Published = true
		}
	}
	return nil
}

func (s *MockOutbox) Pending(ctx context.Context, limit int) ([]order.OrderCreated, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []order.OrderCreated
	for _, r := range s.db.outbox {
		if len(out) == limit {
			break
		}
		if !r.Published {
			out = append(out, r.Event)
		}
	}
	return out, nil
}

func (s *MockOutbox) RecordFailure(ctx context.Context, eventID, reason string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for i := range s.db.outbox {
		if s.db.outbox[i].Event.EventID == eventID {
			s.db.outbox[i].Attempts++
			s.db.outbox[i].LastError = reason
		}
	}
	return nil
}
