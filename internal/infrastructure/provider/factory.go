package provider

import (
	"go.uber.org/zap"

	"github.com/wekeepgrowing/paycore/internal/config"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/infrastructure/provider/gateway"
	paymeProvider "github.com/wekeepgrowing/paycore/internal/infrastructure/provider/payme"
	paypalProvider "github.com/wekeepgrowing/paycore/internal/infrastructure/provider/paypal"
	stripeProvider "github.com/wekeepgrowing/paycore/internal/infrastructure/provider/stripe"
)

// Factory creates payment provider adapters from configuration
type Factory struct {
	config config.ProvidersConfig
	logger *zap.Logger
}

// NewFactory creates a new provider factory
func NewFactory(cfg config.ProvidersConfig, logger *zap.Logger) *Factory {
	return &Factory{
		config: cfg,
		logger: logger,
	}
}

// Registry builds the closed adapter registry. Each adapter gets its own
// transport so one failing gateway cannot open another's breaker.
func (f *Factory) Registry() *provider.Registry {
	return provider.NewRegistry(
		f.createStripeProvider(),
		f.createPayPalProvider(),
		f.createPayMeProvider(),
	)
}

func (f *Factory) gateway(t provider.Type) *gateway.Client {
	return gateway.New(string(t), gateway.Options{
		Timeout:             f.config.Timeout,
		BreakerMaxRequests:  f.config.BreakerMaxRequests,
		BreakerInterval:     f.config.BreakerInterval,
		BreakerTimeout:      f.config.BreakerTimeout,
		BreakerFailureRatio: f.config.BreakerFailureRatio,
		BreakerMinRequests:  f.config.BreakerMinRequests,
	}, f.logger.With(zap.String("provider", string(t))))
}

func (f *Factory) createStripeProvider() provider.Adapter {
	return stripeProvider.NewStripeProvider(
		f.config.Stripe.BaseURL,
		f.gateway(provider.TypeStripe),
		f.logger,
	)
}

func (f *Factory) createPayPalProvider() provider.Adapter {
	if f.config.PayPal.BaseURL == "" {
		f.logger.Warn("PayPal base URL not configured; stores must supply base_url in credentials")
	}
	return paypalProvider.NewPayPalProvider(
		f.config.PayPal.BaseURL,
		f.gateway(provider.TypePayPal),
		f.logger,
	)
}

func (f *Factory) createPayMeProvider() provider.Adapter {
	if f.config.PayMe.BaseURL == "" {
		f.logger.Warn("PayMe base URL not configured; stores must supply base_url in credentials")
	}
	return paymeProvider.NewPayMeProvider(
		f.config.PayMe.BaseURL,
		f.gateway(provider.TypePayMe),
		f.logger,
	)
}
