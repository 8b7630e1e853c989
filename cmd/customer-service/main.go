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
	"github.com/example/ec-order-events/internal/domain/customer"
	"github.com/example/ec-order-events/internal/eventbus"
	"github.com/example/ec-order-events/internal/infrastructure/customerstore"
	"github.com/example/ec-order-events/internal/infrastructure/kafka"
	"github.com/example/ec-order-events/internal/infrastructure/rabbitmq"
	"github.com/example/ec-order-events/internal/logging"
	"github.com/example/ec-order-events/internal/metrics"
	"github.com/example/ec-order-events/internal/projection"
	"github.com/example/ec-order-events/internal/query"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// consumer delivers order created events to a handler until ctx is done.
type consumer interface {
	Consume(ctx context.Context, handler eventbus.MessageHandler) error
}

func main() {
	cfg, err := config.LoadConfig(".", config.CustomerService)
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
		Msg("Starting customer service")

	m := metrics.New(cfg.AppName)
	if err := m.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}

	db, err := customerstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get database handle")
	}
	defer sqlDB.Close()

	customers := customerstore.NewCustomerStore(db)
	customerOrders := customerstore.NewOrderStore(db)
	customerSvc := customer.NewService(customers, customerOrders)
	projector := projection.NewProjector(customers, customerOrders, m)

	policy := eventbus.RetryPolicy{
		MaxAttempts:     cfg.MaxProcessingRetries,
		InitialInterval: cfg.RetryInitialInterval,
	}
	events, closeConsumer, err := newConsumer(ctx, cfg, policy, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up event consumer")
	}
	defer closeConsumer()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := events.Consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Consumer stopped")
			stop()
		}
	}()

	handlers := api.NewCustomerHandlers(command.NewCustomerHandler(customerSvc), query.NewCustomerHandler(customerSvc))
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewCustomerRouter(handlers, m, prometheus.DefaultGatherer, sqlDB, cfg.AllowedOrigins()),
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

func newConsumer(ctx context.Context, cfg config.Config, policy eventbus.RetryPolicy, m *metrics.Metrics) (consumer, func(), error) {
	if cfg.Broker == config.BrokerKafka {
		c := kafka.NewConsumer(cfg.KafkaBrokerList(), cfg.KafkaTopic, cfg.KafkaConsumerGroup, policy, m)
		log.Info().
			Str("topic", cfg.KafkaTopic).
			Str("group", cfg.KafkaConsumerGroup).
			Msg("Consuming from Kafka")
		return c, func() { c.Close() }, nil
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
	topology := rabbitmq.Topology{
		Exchange:           cfg.RabbitMQExchange,
		RoutingKey:         cfg.RabbitMQRoutingKey,
		Queue:              cfg.RabbitMQQueue,
		DeadLetterExchange: cfg.RabbitMQDLX,
		Prefetch:           cfg.RabbitMQPrefetch,
	}
	if err := rabbitmq.DeclareQueues(ch, topology); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return rabbitmq.NewConsumer(ch, topology, policy, m), func() { ch.Close(); conn.Close() }, nil
}
