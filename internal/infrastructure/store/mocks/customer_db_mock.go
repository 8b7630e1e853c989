package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ec-order-events/internal/domain/customer"
	"github.com/example/ec-order-events/internal/readmodel"
)

// MockCustomerDB is an in-memory stand-in for the customer service database.
type MockCustomerDB struct {
	mu        sync.Mutex
	customers map[int64]customer.Customer
	orders    map[int64]readmodel.CustomerOrder // keyed by OrderID

	nextCustomerID int64
	nextRowID      int64

	// For tracking calls in tests
	InsertCalls []readmodel.CustomerOrder
	ExistsCalls []int64

	// Errors injected by tests
	ExistsErr error
	InsertErr error
}

func NewMockCustomerDB() *MockCustomerDB {
	return &MockCustomerDB{
		customers: make(map[int64]customer.Customer),
		orders:    make(map[int64]readmodel.CustomerOrder),
	}
}

func (m *MockCustomerDB) Customers() *MockCustomerStore           { return &MockCustomerStore{db: m} }
func (m *MockCustomerDB) CustomerOrders() *MockCustomerOrderStore { return &MockCustomerOrderStore{db: m} }

// AddCustomer seeds a customer and returns its id.
func (m *MockCustomerDB) AddCustomer(c customer.Customer) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextCustomerID++
	c.ID = m.nextCustomerID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
		c.UpdatedAt = c.CreatedAt
	}
	m.customers[c.ID] = c
	return c.ID
}

// OrderRows counts customer order rows for orderID.
func (m *MockCustomerDB) OrderRows(orderID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; ok {
		return 1
	}
	return 0
}

func (m *MockCustomerDB) CustomerOrder(orderID int64) (readmodel.CustomerOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	co, ok := m.orders[orderID]
	return co, ok
}

// MockCustomerStore implements customer.Repository and projection.CustomerLookup.
type MockCustomerStore struct {
	db *MockCustomerDB
}

func (s *MockCustomerStore) Create(ctx context.Context, c *customer.Customer) error {
	s.db.mu.Lock()
	for _, existing := range s.db.customers {
		if existing.Email == c.Email {
			s.db.mu.Unlock()
			return customer.ErrEmailTaken
		}
	}
	s.db.mu.Unlock()

	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	c.ID = s.db.AddCustomer(*c)
	return nil
}

func (s *MockCustomerStore) Get(ctx context.Context, id int64) (*customer.Customer, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	c, ok := s.db.customers[id]
	if !ok {
		return nil, customer.ErrCustomerNotFound
	}
	return &c, nil
}

func (s *MockCustomerStore) FindByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, c := range s.db.customers {
		if c.Email == email {
			c := c
			return &c, nil
		}
	}
	return nil, customer.ErrCustomerNotFound
}

func (s *MockCustomerStore) List(ctx context.Context) ([]*customer.Customer, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]*customer.Customer, 0, len(s.db.customers))
	for _, c := range s.db.customers {
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MockCustomerStore) Exists(ctx context.Context, id int64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	s.db.ExistsCalls = append(s.db.ExistsCalls, id)
	if s.db.ExistsErr != nil {
		return false, s.db.ExistsErr
	}
	_, ok := s.db.customers[id]
	return ok, nil
}

// MockCustomerOrderStore implements projection.Store and customer.OrderHistory.
type MockCustomerOrderStore struct {
	db *MockCustomerDB
}

func (s *MockCustomerOrderStore) InsertIfAbsent(ctx context.Context, co *readmodel.CustomerOrder) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	s.db.InsertCalls = append(s.db.InsertCalls, *co)
	if s.db.InsertErr != nil {
		return false, s.db.InsertErr
	}
	if _, ok := s.db.orders[co.OrderID]; ok {
		return false, nil
	}
	s.db.nextRowID++
	co.ID = s.db.nextRowID
	s.db.orders[co.OrderID] = *co
	return true, nil
}

func (s *MockCustomerOrderStore) ListByCustomer(ctx context.Context, customerID int64) ([]*readmodel.CustomerOrder, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]*readmodel.CustomerOrder, 0)
	for _, co := range s.db.orders {
		if co.CustomerID == customerID {
			co := co
			out = append(out, &co)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
