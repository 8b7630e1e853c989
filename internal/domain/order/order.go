package order

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/example/ec-order-events/internal/apperror"
	"github.com/example/ec-order-events/internal/domain/inventory"
	"github.com/example/ec-order-events/internal/domain/product"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound      = apperror.NotFound("order not found")
	ErrProductsNotFound   = apperror.NotFound("one or more products not found")
	ErrEmptyOrder         = apperror.Validation("order must have at least one item")
	ErrInvalidQuantity    = apperror.Validation("quantity must be a positive integer")
	ErrInvalidCustomerID  = apperror.Validation("customerId must be a positive integer")
	ErrInvalidProductID   = apperror.Validation("productId must be a positive integer")
	ErrShippingAddressLen = apperror.Validation("shippingAddress must be at most 500 characters")
	ErrTotalTooLarge      = apperror.Validation("order total must be less than 100000000")
)

const maxShippingAddressLen = 500

type Order struct {
	ID              int64           `json:"id" db:"id"`
	CustomerID      int64           `json:"customerId" db:"customer_id"`
	TotalAmount     decimal.Decimal `json:"totalAmount" db:"total_amount"`
	ShippingAddress string          `json:"shippingAddress,omitempty" db:"shipping_address"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	Items           []OrderLine     `json:"items" db:"-"`
}

// MarshalJSON writes money with exactly two decimal places.
func (o Order) MarshalJSON() ([]byte, error) {
	type alias Order
	return json.Marshal(struct {
		alias
		TotalAmount string `json:"totalAmount"`
	}{alias(o), o.TotalAmount.StringFixed(2)})
}

// OrderLine snapshots the product name and unit price at the time of ordering.
type OrderLine struct {
	ID          int64           `json:"id" db:"id"`
	OrderID     int64           `json:"orderId" db:"order_id"`
	ProductID   int64           `json:"productId" db:"product_id"`
	ProductName string          `json:"productName" db:"product_name"`
	Quantity    int             `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"`
}

func (l OrderLine) MarshalJSON() ([]byte, error) {
	type alias OrderLine
	return json.Marshal(struct {
		alias
		Price string `json:"price"`
	}{alias(l), l.Price.StringFixed(2)})
}

func (l OrderLine) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Item struct {
	ProductID int64
	Quantity  int
}

type PlaceOrder struct {
	CustomerID      int64
	Items           []Item
	ShippingAddress string
}

func (p PlaceOrder) Validate() error {
	if p.CustomerID <= 0 {
		return ErrInvalidCustomerID
	}
	if len(p.Items) == 0 {
		return ErrEmptyOrder
	}
	for _, item := range p.Items {
		if item.ProductID <= 0 {
			return ErrInvalidProductID
		}
		if item.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}
	if len(p.ShippingAddress) > maxShippingAddressLen {
		return ErrShippingAddressLen
	}
	return nil
}

// productIDs returns the distinct product ids in submission order.
func (p PlaceOrder) productIDs() []int64 {
	seen := make(map[int64]struct{}, len(p.Items))
	ids := make([]int64, 0, len(p.Items))
	for _, item := range p.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Store persists an order with its lines as one unit and always reads lines back with it.
type Store interface {
	Save(ctx context.Context, o *Order) error
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context) ([]*Order, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]*Order, error)
}

// Outbox records events in the same transaction as the order.
type Outbox interface {
	Enqueue(ctx context.Context, evt OrderCreated) error
	MarkPublished(ctx context.Context, eventID string) error
}

// EventPublisher reports delivered=true only when the broker accepted and routed the event.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, evt OrderCreated) (bool, error)
}

// TxRunner runs fn in a transaction carried by the context passed to fn.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ProductFinder interface {
	FindByIDs(ctx context.Context, ids []int64) ([]*product.Product, error)
}

type Service struct {
	products  ProductFinder
	ledger    *inventory.Ledger
	orders    Store
	outbox    Outbox
	tx        TxRunner
	publisher EventPublisher
	now       func() time.Time
}

func NewService(products ProductFinder, ledger *inventory.Ledger, orders Store, outbox Outbox, tx TxRunner, publisher EventPublisher) *Service {
	return &Service{
		products:  products,
		ledger:    ledger,
		orders:    orders,
		outbox:    outbox,
		tx:        tx,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Place validates, prices and persists an order, then publishes OrderCreated.
//
// Every line is checked against one batch lookup before anything is written.
// Stock decrements, the order and its outbox row commit together. A failed
// publish is logged and left to the outbox relay; the order stays placed.
func (s *Service) Place(ctx context.Context, req PlaceOrder) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ids := req.productIDs()
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		if apperror.IsClassified(err) {
			return nil, err
		}
		return nil, apperror.Persistence("failed to load products", err)
	}
	if len(products) != len(ids) {
		return nil, ErrProductsNotFound
	}

	byID := make(map[int64]*product.Product, len(products))
	stock := make(map[int64]int, len(products))
	for _, p := range products {
		byID[p.ID] = p
		stock[p.ID] = p.Stock
	}

	o := &Order{
		CustomerID:      req.CustomerID,
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
		TotalAmount:     decimal.Zero,
		CreatedAt:       s.now(),
		Items:           make([]OrderLine, 0, len(req.Items)),
	}
	demands := make([]inventory.Demand, 0, len(req.Items))
	for _, item := range req.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, ErrProductsNotFound
		}
		line := OrderLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    item.Quantity,
			Price:       p.Price,
		}
		o.Items = append(o.Items, line)
		o.TotalAmount = o.TotalAmount.Add(line.Total())
		demands = append(demands, inventory.Demand{ProductID: p.ID, ProductName: p.Name, Quantity: item.Quantity})
	}

	if o.TotalAmount.GreaterThan(product.MaxAmount) {
		return nil, ErrTotalTooLarge
	}

	if err := inventory.Verify(demands, stock); err != nil {
		log.Info().Err(err).Int64("customerId", req.CustomerID).Msg("Order rejected")
		return nil, err
	}

	var evt OrderCreated
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.ledger.DecrementAll(ctx, demands); err != nil {
			return err
		}
		if err := s.orders.Save(ctx, o); err != nil {
			return classify("failed to save order", err)
		}
		evt = NewOrderCreated(o)
		return classify("failed to record order event", s.outbox.Enqueue(ctx, evt))
	})
	if err != nil {
		log.Warn().Err(err).Int64("customerId", req.CustomerID).Msg("Order not placed")
		return nil, err
	}

	log.Info().
		Int64("orderId", o.ID).
		Int64("customerId", o.CustomerID).
		Str("totalAmount", o.TotalAmount.StringFixed(2)).
		Int("lines", len(o.Items)).
		Msg("Order placed")

	s.publish(context.WithoutCancel(ctx), evt)
	return o, nil
}

func (s *Service) publish(ctx context.Context, evt OrderCreated) {
	delivered, err := s.publisher.PublishOrderCreated(ctx, evt)
	if err != nil {
		log.Warn().
			Err(apperror.Publish("failed to publish order created event", err)).
			Int64("orderId", evt.OrderID).
			Str("eventId", evt.EventID).
			Msg("Event left in outbox for relay")
		return
	}
	if !delivered {
		log.Warn().
			Int64("orderId", evt.OrderID).
			Str("eventId", evt.EventID).
			Msg("Event was not routed to any queue, left in outbox for relay")
		return
	}
	if err := s.outbox.MarkPublished(ctx, evt.EventID); err != nil {
		log.Warn().Err(err).Str("eventId", evt.EventID).Msg("Failed to mark event published")
	}
}

func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.orders.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Order, error) {
	return s.orders.List(ctx)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID int64) ([]*Order, error) {
	return s.orders.ListByCustomer(ctx, customerID)
}

func classify(msg string, err error) error {
	if err == nil || apperror.IsClassified(err) {
		return err
	}
	return apperror.Persistence(msg, err)
}
