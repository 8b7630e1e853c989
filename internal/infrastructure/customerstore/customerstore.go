// Package customerstore persists customers and their projected order history with GORM.
package customerstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-order-events/internal/apperror"
	"github.com/example/ec-order-events/internal/domain/customer"
	"github.com/example/ec-order-events/internal/readmodel"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Open connects to PostgreSQL and migrates the customer service tables.
func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&customer.Customer{}, &readmodel.CustomerOrder{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	log.Info().Msg("Database schema is up to date")
	return db, nil
}

// CustomerStore implements customer.Repository.
type CustomerStore struct {
	db *gorm.DB
}

func NewCustomerStore(db *gorm.DB) *CustomerStore {
	return &CustomerStore{db: db}
}

func (s *CustomerStore) Create(ctx context.Context, c *customer.Customer) error {
	err := s.db.WithContext(ctx).Create(c).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return customer.ErrEmailTaken
	}
	return apperror.Persistence("failed to create customer", err)
}

func (s *CustomerStore) Get(ctx context.Context, id int64) (*customer.Customer, error) {
	var c customer.Customer
	err := s.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, customer.ErrCustomerNotFound
	}
	if err != nil {
		return nil, apperror.Persistence(fmt.Sprintf("failed to get customer %d", id), err)
	}
	return &c, nil
}

// FindByEmail expects an already normalized email.
func (s *CustomerStore) FindByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	var c customer.Customer
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, customer.ErrCustomerNotFound
	}
	if err != nil {
		return nil, apperror.Persistence("failed to find customer by email", err)
	}
	return &c, nil
}

func (s *CustomerStore) List(ctx context.Context) ([]*customer.Customer, error) {
	customers := []*customer.Customer{}
	err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&customers).Error
	if err != nil {
		return nil, apperror.Persistence("failed to list customers", err)
	}
	return customers, nil
}

func (s *CustomerStore) Exists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&customer.Customer{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, apperror.Persistence(fmt.Sprintf("failed to look up customer %d", id), err)
	}
	return count > 0, nil
}

// OrderStore implements the customer order read model.
type OrderStore struct {
	db *gorm.DB
}

func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

// InsertIfAbsent inserts co unless a row for the same order exists.
// It reports whether a row was created.
func (s *OrderStore) InsertIfAbsent(ctx context.Context, co *readmodel.CustomerOrder) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(co)
	if result.Error != nil {
		return false, apperror.Persistence(fmt.Sprintf("failed to insert customer order %d", co.OrderID), result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ListByCustomer returns the customer's orders newest first.
func (s *OrderStore) ListByCustomer(ctx context.Context, customerID int64) ([]*readmodel.CustomerOrder, error) {
	orders := []*readmodel.CustomerOrder{}
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC, id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, apperror.Persistence(fmt.Sprintf("failed to list orders of customer %d", customerID), err)
	}
	return orders, nil
}
