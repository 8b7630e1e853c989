package main

import (
	"context"

	"github.com/example/ec-order-events/internal/config"
	"github.com/example/ec-order-events/internal/domain/product"
	"github.com/example/ec-order-events/internal/infrastructure/store"
	"github.com/example/ec-order-events/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type demoProduct struct {
	name        string
	description string
	price       string
	stock       int
}

var catalog = []demoProduct{
	{"Laptop", "High-performance laptop for work and gaming", "1299.99", 50},
	{"Smartphone", "Latest smartphone with advanced features", "899.99", 100},
	{"Wireless Headphones", "Premium wireless headphones with noise cancellation", "249.99", 75},
	{"Smart Watch", "Feature-rich smartwatch with health tracking", "399.99", 60},
	{"Tablet", "10-inch tablet perfect for reading and browsing", "499.99", 40},
	{"Camera", "Professional DSLR camera for photography", "1599.99", 30},
	{"Gaming Console", "Latest gaming console with 4K support", "499.99", 25},
	{"Bluetooth Speaker", "Portable Bluetooth speaker with excellent sound quality", "79.99", 90},
}

// Seeds the demo catalog into an empty products table.
func main() {
	cfg, err := config.LoadConfig(".", config.OrderService)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.LogLevel)
	ctx := context.Background()

	db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	svc := product.NewService(store.NewProductStore(db), nil)
	existing, err := svc.List(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list products")
	}
	if len(existing) > 0 {
		log.Info().Int("products", len(existing)).Msg("Catalog already seeded, nothing to do")
		return
	}

	for _, p := range catalog {
		if _, err := svc.Create(ctx, p.name, p.description, decimal.RequireFromString(p.price), p.stock); err != nil {
			log.Fatal().Err(err).Str("name", p.name).Msg("Failed to seed product")
		}
	}
	log.Info().Int("products", len(catalog)).Msg("Products seeded successfully")
}
