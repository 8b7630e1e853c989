package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-order-events/internal/domain/order"
)

// MockPublisher records published events. Delivered defaults to true.
type MockPublisher struct {
	mu sync.Mutex

	Published []order.OrderCreated
	Delivered bool
	Err       error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Delivered: true}
}

func (p *MockPublisher) PublishOrderCreated(ctx context.Context, evt order.OrderCreated) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Published = append(p.Published, evt)
	if p.Err != nil {
		return false, p.Err
	}
	return p.Delivered, nil
}

func (p *MockPublisher) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Published)
}
