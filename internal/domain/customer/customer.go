package customer

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/example/ec-order-events/internal/apperror"
	"github.com/example/ec-order-events/internal/readmodel"
	"github.com/rs/zerolog/log"
)

var (
	ErrCustomerNotFound = apperror.NotFound("customer not found")
	ErrEmailTaken       = apperror.Conflict("email is already registered")
	ErrInvalidName      = apperror.Validation("name is required")
	ErrInvalidEmail     = apperror.Validation("email must be a valid address")
	ErrInvalidAddress   = apperror.Validation("address, city and zipCode are required")
)

// Customer is owned by the customer service.
type Customer struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:255;not null"`
	Email     string    `json:"email" gorm:"size:255;not null;uniqueIndex"`
	Phone     string    `json:"phone,omitempty" gorm:"size:20"`
	Address   string    `json:"address" gorm:"size:500;not null"`
	City      string    `json:"city" gorm:"size:100;not null"`
	ZipCode   string    `json:"zipCode" gorm:"size:20;not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Registration struct {
	Name    string
	Email   string
	Phone   string
	Address string
	City    string
	ZipCode string
}

func (r Registration) normalize() Registration {
	return Registration{
		Name:    strings.TrimSpace(r.Name),
		Email:   strings.ToLower(strings.TrimSpace(r.Email)),
		Phone:   strings.TrimSpace(r.Phone),
		Address: strings.TrimSpace(r.Address),
		City:    strings.TrimSpace(r.City),
		ZipCode: strings.TrimSpace(r.ZipCode),
	}
}

func (r Registration) Validate() error {
	if r.Name == "" {
		return ErrInvalidName
	}
	if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email {
		return ErrInvalidEmail
	}
	if r.Address == "" || r.City == "" || r.ZipCode == "" {
		return ErrInvalidAddress
	}
	return nil
}

// Repository returns ErrCustomerNotFound for unknown ids and ErrEmailTaken on a duplicate email.
type Repository interface {
	Create(ctx context.Context, c *Customer) error
	Get(ctx context.Context, id int64) (*Customer, error)
	FindByEmail(ctx context.Context, email string) (*Customer, error)
	List(ctx context.Context) ([]*Customer, error)
	Exists(ctx context.Context, id int64) (bool, error)
}

type OrderHistory interface {
	ListByCustomer(ctx context.Context, customerID int64) ([]*readmodel.CustomerOrder, error)
}

type Service struct {
	repo    Repository
	history OrderHistory
}

func NewService(repo Repository, history OrderHistory) *Service {
	return &Service{repo: repo, history: history}
}

func (s *Service) Create(ctx context.Context, reg Registration) (*Customer, error) {
	reg = reg.normalize()
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	c := &Customer{
		Name:    reg.Name,
		Email:   reg.Email,
		Phone:   reg.Phone,
		Address: reg.Address,
		City:    reg.City,
		ZipCode: reg.ZipCode,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	log.Info().Int64("customerId", c.ID).Msg("Customer created")
	return c, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

// FindByEmail looks a customer up by email, ignoring case and surrounding spaces.
func (s *Service) FindByEmail(ctx context.Context, email string) (*Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrCustomerNotFound
	}
	return s.repo.FindByEmail(ctx, email)
}

// List returns customers newest first.
func (s *Service) List(ctx context.Context) ([]*Customer, error) {
	return s.repo.List(ctx)
}

// Orders returns the projected order history, newest first.
func (s *Service) Orders(ctx context.Context, customerID int64) ([]*readmodel.CustomerOrder, error) {
	if _, err := s.repo.Get(ctx, customerID); err != nil {
		return nil, err
	}
	return s.history.ListByCustomer(ctx, customerID)
}
