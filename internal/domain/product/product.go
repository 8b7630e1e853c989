package product

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/example/ec-order-events/internal/apperror"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

var (
	ErrProductNotFound = apperror.NotFound("product not found")
	ErrInvalidName     = apperror.Validation("name is required")
	ErrInvalidPrice    = apperror.Validation("price must be positive")
	ErrPricePrecision  = apperror.Validation("price must have at most 2 decimal places")
	ErrPriceTooLarge   = apperror.Validation("price must be less than 100000000")
	ErrInvalidStock    = apperror.Validation("stock must not be negative")
)

type Product struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Stock       int             `json:"stock" db:"stock"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// MarshalJSON writes the price with exactly two decimal places.
func (p Product) MarshalJSON() ([]byte, error) {
	type alias Product
	return json.Marshal(struct {
		alias
		Price string `json:"price"`
	}{alias(p), p.Price.StringFixed(2)})
}

// Repository persists products.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	Get(ctx context.Context, id int64) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
	FindByIDs(ctx context.Context, ids []int64) ([]*Product, error)
}

// Cache is an optional read-through cache for catalog reads.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
}

// MaxAmount is the largest value a NUMERIC(10,2) money column holds.
var MaxAmount = decimal.RequireFromString("99999999.99")

const listCacheKey = "products:all"

func itemCacheKey(id int64) string {
	return fmt.Sprintf("products:%d", id)
}

type Service struct {
	repo  Repository
	cache Cache
	group singleflight.Group

	// generation changes on every Invalidate.
	generation atomic.Uint64
}

// NewService creates a product service. cache may be nil.
func NewService(repo Repository, cache Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

func (s *Service) Create(ctx context.Context, name, description string, price decimal.Decimal, stock int) (*Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if !price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if !price.Round(2).Equal(price) {
		return nil, ErrPricePrecision
	}
	if price.GreaterThan(MaxAmount) {
		return nil, ErrPriceTooLarge
	}
	if stock < 0 {
		return nil, ErrInvalidStock
	}

	p := &Product{
		Name:        name,
		Description: description,
		Price:       price.Round(2),
		Stock:       stock,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.Invalidate(ctx)
	log.Info().Int64("productId", p.ID).Str("name", p.Name).Msg("Product created")
	return p, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	key := itemCacheKey(id)
	if s.cache != nil {
		var cached Product
		if ok, err := s.cache.Get(ctx, key, &cached); err == nil && ok {
			return &cached, nil
		} else if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Product cache read failed")
		}
	}

	v, err := s.load(ctx, key, func(ctx context.Context) (any, error) {
		return s.repo.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Product), nil
}

func (s *Service) List(ctx context.Context) ([]*Product, error) {
	if s.cache != nil {
		var cached []*Product
		if ok, err := s.cache.Get(ctx, listCacheKey, &cached); err == nil && ok {
			return cached, nil
		} else if err != nil {
			log.Warn().Err(err).Msg("Product cache read failed")
		}
	}

	v, err := s.load(ctx, listCacheKey, func(ctx context.Context) (any, error) {
		return s.repo.List(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*Product), nil
}

// load reads key from the store once for all concurrent callers and caches the
// result unless an invalidation happened while the read was in flight.
func (s *Service) load(ctx context.Context, key string, read func(context.Context) (any, error)) (any, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		gen := s.generation.Load()
		v, err := read(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if s.generation.Load() == gen {
			s.store(context.WithoutCancel(ctx), key, v)
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Invalidate drops the cached listing and the given products. Reads already in
// flight are not cached and later callers start a fresh read.
func (s *Service) Invalidate(ctx context.Context, ids ...int64) {
	if s.cache == nil {
		return
	}
	s.generation.Add(1)
	keys := []string{listCacheKey}
	for _, id := range ids {
		keys = append(keys, itemCacheKey(id))
	}
	for _, key := range keys {
		s.group.Forget(key)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("Product cache invalidation failed")
	}
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Product cache write failed")
	}
}
