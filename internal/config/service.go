package config

import "time"

type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	ClientURL   string `mapstructure:"client_url"`
}

// JWTConfig verifies merchant staff tokens (HS256).
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// RedisConfig configures the reconcile in-flight lock. Empty Addr disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type ProvidersConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	BreakerMaxRequests  uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval     time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
	BreakerFailureRatio float64       `mapstructure:"breaker_failure_ratio"`
	BreakerMinRequests  uint32        `mapstructure:"breaker_min_requests"`

	Stripe ProviderEndpoint `mapstructure:"stripe"`
	PayPal ProviderEndpoint `mapstructure:"paypal"`
	PayMe  ProviderEndpoint `mapstructure:"payme"`
}

type ProviderEndpoint struct {
	BaseURL string `mapstructure:"base_url"`
}

type PaymentsConfig struct {
	PendingTTL      time.Duration `mapstructure:"pending_ttl"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	CallbackBaseURL string        `mapstructure:"callback_base_url"`
}

type WebhooksConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	Workers           int           `mapstructure:"workers"`
	QueueSize         int           `mapstructure:"queue_size"`
	BatchSize         int           `mapstructure:"batch_size"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	DisableThreshold  int           `mapstructure:"disable_threshold"`
	MaxResponseLength int           `mapstructure:"max_response_length"`
}
