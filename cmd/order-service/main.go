package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/example/ec-order-events/internal/api"
	"github.com/example/ec-order-events/internal/command"
	"github.com/example/ec-order-events/internal/config"
	"github.com/example/ec-order-events/internal/domain/inventory"
	"github.com/example/ec-order-events/internal/domain/order"
	"github.com/example/ec-order-events/internal/domain/product"
	"github.com/example/ec-order-events/internal/infrastructure/cache"
	"github.com/example/ec-order-events/internal/infrastructure/kafka"
	"github.com/example/ec-order-events/internal/infrastructure/rabbitmq"
	"github.com/example/ec-order-events/internal/infrastructure/store"
	"github.com/example/ec-order-events/internal/logging"
	"github.com/example/ec-order-events/internal/metrics"
	"github.com/example/ec-order-events/internal/outbox"
	"github.com/example/ec-order-events/internal/query"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadConfig(".", config.OrderService)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("service", cfg.AppName).
		Str("broker", cfg.Broker).
		Str("addr", cfg.HTTPAddr).
		Msg("Starting order service")

	m := metrics.New(cfg.AppName)
	if err := m.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}

	// Initialize PostgreSQL connection
	db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	// Initialize stores
	txManager := store.NewTxManager(db)
	productStore := store.NewProductStore(db)
	orderStore := store.NewOrderStore(db, txManager)
	outboxStore := store.NewOutboxStore(db)

	publisher, closePublisher, err := newPublisher(ctx, cfg, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up event publisher")
	}
	defer closePublisher()

	// Initialize domain services
	var productCache product.Cache
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer client.Close()
		productCache = cache.NewRedisCache(client, "order-service:", cfg.CacheTTL)
		log.Info().Dur("ttl", cfg.CacheTTL).Msg("Product cache enabled")
	}
	productSvc := product.NewService(productStore, productCache)
	orderSvc := order.NewService(productStore, inventory.NewLedger(productStore), orderStore, outboxStore, txManager, publisher)

	var wg sync.WaitGroup
	relay := outbox.NewRelay(outboxStore, publisher, cfg.OutboxInterval, cfg.OutboxBatchSize, m)
	wg.Add(1)
	go func() {
		defer wg.Done()
		relay.Run(ctx)
	}()

	// Initialize API
	handlers := api.NewHandlers(command.NewHandler(productSvc, orderSvc, m), query.NewHandler(productSvc, orderSvc))
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handlers, m, prometheus.DefaultGatherer, db, cfg.AllowedOrigins()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	wg.Wait()
}

// newPublisher connects the configured broker.
func newPublisher(ctx context.Context, cfg config.Config, m *metrics.Metrics) (order.EventPublisher, func(), error) {
	if cfg.Broker == config.BrokerKafka {
		producer := kafka.NewProducer(cfg.KafkaBrokerList(), cfg.KafkaTopic, cfg.PublishTimeout, m)
		log.Info().Strs("brokers", cfg.KafkaBrokerList()).Str("topic", cfg.KafkaTopic).Msg("Publishing to Kafka")
		return producer, func() { producer.Close() }, nil
	}

	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQURL)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	topology := topologyFrom(cfg)
	if err := rabbitmq.DeclareExchange(ch, topology); err != nil {
		conn.Close()
		return nil, nil, err
	}
	publisher, err := rabbitmq.NewPublisher(ch, topology, cfg.PublishTimeout, m)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	log.Info().Str("exchange", topology.Exchange).Str("routingKey", topology.RoutingKey).Msg("Publishing to RabbitMQ")
	return publisher, func() { ch.Close(); conn.Close() }, nil
}

func topologyFrom(cfg config.Config) rabbitmq.Topology {
	return rabbitmq.Topology{
		Exchange:           cfg.RabbitMQExchange,
		RoutingKey:         cfg.RabbitMQRoutingKey,
		Queue:              cfg.RabbitMQQueue,
		DeadLetterExchange: cfg.RabbitMQDLX,
		Prefetch:           cfg.RabbitMQPrefetch,
	}
}
