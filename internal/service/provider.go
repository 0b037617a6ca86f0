package service

import (
	"context"
	"errors"

	"grocery-price-api/internal/config"
	"grocery-price-api/internal/logger"
	"grocery-price-api/internal/models"
)

// ErrNoProviders is the cause of every ErrorTypeNoProviders failure
var ErrNoProviders = errors.New("no exchange rate providers configured")

// ExchangeRateProvider is one upstream rates API. Only the USD table is
// ever requested; its CAD entry becomes the price multiplier.
type ExchangeRateProvider interface {
	GetName() string
	GetRates(ctx context.Context, baseCurrency string) (models.RatesResponse, error)
	IsEnabled() bool
	GetPriority() int
}

// ProviderFactory turns the configured provider list into HTTP providers
type ProviderFactory struct {
	providerConfigs []config.ExchangeRateProvider
	logger          *logger.Logger
}

func NewProviderFactory(configuration *config.Config, logger *logger.Logger) *ProviderFactory {
	return &ProviderFactory{
		providerConfigs: configuration.ExchangeRateProviders,
		logger:          logger,
	}
}

// CreateProviders keeps configuration order, which config sorts by priority
func (providerFactory *ProviderFactory) CreateProviders() []ExchangeRateProvider {
	providers := make([]ExchangeRateProvider, 0, len(providerFactory.providerConfigs))

	for _, providerConfig := range providerFactory.providerConfigs {
		if !providerConfig.Enabled || providerConfig.BaseURL == "" {
			continue
		}
		providerFactory.logger.Debugf("Exchange rate provider %s enabled (priority %d)", providerConfig.Name, providerConfig.Priority)
		providers = append(providers, NewHTTPExchangeRateProvider(providerConfig, providerFactory.logger))
	}

	if len(providers) == 0 {
		providerFactory.logger.Warnf("%v; using DEFAULT_EXCHANGE_RATE only", ErrNoProviders)
	}

	return providers
}
