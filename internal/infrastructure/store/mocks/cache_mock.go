package mocks

import (
	"context"
	"encoding/json"
	"sync"
)

// MockCache is an in-memory product.Cache that stores JSON like the redis cache does.
type MockCache struct {
	mu    sync.Mutex
	items map[string][]byte

	GetCalls    []string
	DeleteCalls [][]string
	GetErr      error
}

func NewMockCache() *MockCache {
	return &MockCache{items: make(map[string][]byte)}
}

func (c *MockCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.GetCalls = append(c.GetCalls, key)
	if c.GetErr != nil {
		return false, c.GetErr
	}
	data, ok := c.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dst)
}

func (c *MockCache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = data
	return nil
}

func (c *MockCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.DeleteCalls = append(c.DeleteCalls, keys)
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}

func (c *MockCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}
