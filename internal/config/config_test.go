package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir(), OrderService)

	require.NoError(t, err)
	assert.Equal(t, OrderService, cfg.AppName)
	assert.Equal(t, ":3001", cfg.HTTPAddr)
	assert.Equal(t, BrokerRabbitMQ, cfg.Broker)
	assert.Equal(t, "order.created", cfg.RabbitMQRoutingKey)
	assert.Equal(t, 5*time.Second, cfg.PublishTimeout)
	assert.Equal(t, 3, cfg.MaxProcessingRetries)
	assert.Contains(t, cfg.DatabaseURL, "product_order")
}

func TestLoadConfig_CustomerServiceDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir(), CustomerService)

	require.NoError(t, err)
	assert.Equal(t, ":3002", cfg.HTTPAddr)
	assert.Contains(t, cfg.DatabaseURL, "/customer")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BROKER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PUBLISH_TIMEOUT", "2s")
	t.Setenv("MAX_PROCESSING_RETRIES", "7")

	cfg, err := LoadConfig(t.TempDir(), OrderService)

	require.NoError(t, err)
	assert.Equal(t, BrokerKafka, cfg.Broker)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokerList())
	assert.Equal(t, 2*time.Second, cfg.PublishTimeout)
	assert.Equal(t, 7, cfg.MaxProcessingRetries)
}

func TestLoadConfig_UnsupportedBroker(t *testing.T) {
	t.Setenv("BROKER", "sqs")

	_, err := LoadConfig(t.TempDir(), OrderService)

	assert.Error(t, err)
}

func validConfig() Config {
	return Config{
		Broker:               BrokerRabbitMQ,
		DatabaseURL:          "postgres://x",
		MaxProcessingRetries: 1,
		PublishTimeout:       time.Second,
		OutboxInterval:       time.Second,
		OutboxBatchSize:      10,
	}
}

func TestValidate_Retries(t *testing.T) {
	cfg := validConfig()
	cfg.MaxProcessingRetries = 0
	assert.Error(t, cfg.Validate())

	cfg.MaxProcessingRetries = 1
	assert.NoError(t, cfg.Validate())
}

func TestValidate_NonPositiveDurationsAndBatch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero publish timeout", func(c *Config) { c.PublishTimeout = 0 }},
		{"negative publish timeout", func(c *Config) { c.PublishTimeout = -time.Second }},
		{"zero outbox interval", func(c *Config) { c.OutboxInterval = 0 }},
		{"negative outbox interval", func(c *Config) { c.OutboxInterval = -time.Second }},
		{"zero outbox batch", func(c *Config) { c.OutboxBatchSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfig_RejectsZeroOutboxInterval(t *testing.T) {
	t.Setenv("OUTBOX_INTERVAL", "0s")

	_, err := LoadConfig(t.TempDir(), OrderService)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "OUTBOX_INTERVAL")
}

func TestLoadConfig_RejectsZeroPublishTimeout(t *testing.T) {
	t.Setenv("PUBLISH_TIMEOUT", "0s")

	_, err := LoadConfig(t.TempDir(), OrderService)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "PUBLISH_TIMEOUT")
}

func TestLoadConfig_AllowedOrigins(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir(), CustomerService)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:3001"}, cfg.AllowedOrigins())

	t.Setenv("CORS_ALLOWED_ORIGINS", " https://shop.example.com ,")
	cfg, err = LoadConfig(t.TempDir(), CustomerService)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example.com"}, cfg.AllowedOrigins())
}
