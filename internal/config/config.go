package config

import (
	"fmt"

	pkgconfig "github.com/wekeepgrowing/paycore/pkg/config"
	"github.com/wekeepgrowing/paycore/pkg/logger"
)

type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       logger.Config   `mapstructure:"log"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Payments  PaymentsConfig  `mapstructure:"payments"`
	Webhooks  WebhooksConfig  `mapstructure:"webhooks"`
}

// LoadConfig reads configs/payment.yaml (or CONFIG_PATH) and overlays
// PAYMENT_* environment variables on top of the defaults below.
func LoadConfig() (*Config, error) {
	src, err := pkgconfig.Load("payment", pkgconfig.Options{
		EnvPrefix: "PAYMENT",
		Defaults:  defaults(),
		Optional:  true,
	})
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := src.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"service.name":        "payment",
		"service.environment": "development",
		"service.version":     "dev",
		"service.client_url":  "http://localhost:3000",

		"server.http.host":             "0.0.0.0",
		"server.http.port":             8080,
		"server.http.body_limit":       "1M",
		"server.http.allowed_origins":  []string{"*"},
		"server.http.shutdown_timeout": "15s",
		"server.grpc.host":             "0.0.0.0",
		"server.grpc.port":             9090,

		"database.host":               "localhost",
		"database.port":               5432,
		"database.name":               "payment",
		"database.user":               "postgres",
		"database.password":           "",
		"database.ssl_mode":           "disable",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "30m",
		"database.conn_max_idle_time": "5m",
		"database.slow_threshold":     "200ms",
		"database.log_level":          "warn",

		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.file_path":   "",
		"log.development": false,

		"jwt.secret": "",
		"jwt.issuer": "",

		"redis.addr":     "",
		"redis.password": "",
		"redis.db":       0,
		"redis.lock_ttl": "30s",

		"providers.timeout":               "30s",
		"providers.breaker_max_requests":  1,
		"providers.breaker_interval":      "60s",
		"providers.breaker_timeout":       "30s",
		"providers.breaker_failure_ratio": 0.6,
		"providers.breaker_min_requests":  5,
		"providers.stripe.base_url":       "",
		"providers.paypal.base_url":       "https://api-m.sandbox.paypal.com",
		"providers.payme.base_url":        "https://sandbox.payme.io/api",

		"payments.pending_ttl":       "30m",
		"payments.sweep_interval":    "5m",
		"payments.callback_base_url": "http://localhost:8080",

		"webhooks.timeout":             "10s",
		"webhooks.workers":             4,
		"webhooks.queue_size":          100,
		"webhooks.batch_size":          50,
		"webhooks.poll_interval":       "2s",
		"webhooks.max_attempts":        8,
		"webhooks.backoff_base":        "30s",
		"webhooks.backoff_max":         "6h",
		"webhooks.disable_threshold":   20,
		"webhooks.max_response_length": 1000,
	}
}
