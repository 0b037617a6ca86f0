package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"grocery-price-api/internal/config"
	"grocery-price-api/internal/logger"
	"grocery-price-api/internal/models"
)

// ErrorType classifies upstream failures
type ErrorType int

const (
	ErrorTypeNoProviders ErrorType = iota
	ErrorTypeContextCancelled
	ErrorTypeProviderFailed
	ErrorTypeNetworkError
	ErrorTypeInvalidResponse
	ErrorTypeUnknown
)

// ServiceError represents a service-specific error with type information
type ServiceError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// classifyError maps an error to its ErrorType
func classifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var serviceError *ServiceError
	if errors.As(err, &serviceError) {
		return serviceError.Type
	}

	var netError net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeContextCancelled
	case errors.As(err, &netError):
		return ErrorTypeNetworkError
	default:
		return ErrorTypeUnknown
	}
}

// RatesService fans out to every configured provider and keeps the first
// successful answer for RatesCacheTTL.
type RatesService struct {
	configuration *config.Config
	logger        *logger.Logger
	providers     []ExchangeRateProvider

	cacheMutex sync.RWMutex
	cache      models.RatesCacheEntry

	singleFlightGroup singleflight.Group
}

func NewRatesService(configuration *config.Config, logger *logger.Logger) *RatesService {
	providerFactory := NewProviderFactory(configuration, logger)
	return NewRatesServiceWithProviders(configuration, logger, providerFactory.CreateProviders())
}

// NewRatesServiceWithProviders wires explicit providers
func NewRatesServiceWithProviders(configuration *config.Config, logger *logger.Logger, providers []ExchangeRateProvider) *RatesService {
	return &RatesService{
		configuration: configuration,
		logger:        logger,
		providers:     providers,
	}
}

// GetRates concurrently queries providers, returns first successful response and caches it.
func (ratesService *RatesService) GetRates(requestContext context.Context, baseCurrency string) (models.RatesResponse, error) {
	ratesService.cacheMutex.RLock()
	if ratesService.cache.Data.Base == baseCurrency && time.Now().Before(ratesService.cache.ExpiresAt) {
		cachedResponse := ratesService.cache.Data
		ratesService.cacheMutex.RUnlock()
		return cachedResponse, nil
	}
	ratesService.cacheMutex.RUnlock()

	cacheKey := "rates:" + baseCurrency
	result, err, _ := ratesService.singleFlightGroup.Do(cacheKey, func() (interface{}, error) {
		return ratesService.fetchRatesFromProviders(requestContext, baseCurrency)
	})
	if err != nil {
		return models.RatesResponse{}, err
	}
	return result.(models.RatesResponse), nil
}

// fetchRatesFromProviders fetches rates from all enabled providers concurrently
func (ratesService *RatesService) fetchRatesFromProviders(requestContext context.Context, baseCurrency string) (models.RatesResponse, error) {
	if len(ratesService.providers) == 0 {
		return models.RatesResponse{}, &ServiceError{
			Type:    ErrorTypeNoProviders,
			Message: "cannot fetch rates",
			Cause:   ErrNoProviders,
		}
	}

	type providerResult struct {
		data models.RatesResponse
		err  error
	}

	// Cancel the stragglers once one provider has answered
	fetchContext, cancel := context.WithCancel(requestContext)
	defer cancel()

	resultsChannel := make(chan providerResult, len(ratesService.providers))

	maxConcurrent := ratesService.configuration.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = len(ratesService.providers)
	}
	semaphore := make(chan struct{}, maxConcurrent)

	for _, provider := range ratesService.providers {
		go func(p ExchangeRateProvider) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			ratesService.logger.Debugf("Fetching rates from provider: %s", p.GetName())
			data, err := p.GetRates(fetchContext, baseCurrency)
			if err == nil && data.Provider == "" {
				data.Provider = p.GetName()
			}
			resultsChannel <- providerResult{data, err}
		}(provider)
	}

	var firstError error
	for i := 0; i < len(ratesService.providers); i++ {
		select {
		case <-requestContext.Done():
			return models.RatesResponse{}, &ServiceError{
				Type:    ErrorTypeContextCancelled,
				Message: "request context cancelled",
				Cause:   requestContext.Err(),
			}
		case result := <-resultsChannel:
			if result.err == nil {
				ratesService.cacheMutex.Lock()
				ratesService.cache = models.RatesCacheEntry{
					Data:      result.data,
					ExpiresAt: time.Now().Add(ratesService.configuration.RatesCacheTTL),
				}
				ratesService.cacheMutex.Unlock()

				ratesService.logger.Infof("Successfully fetched rates from provider: %s", result.data.Provider)
				return result.data, nil
			}

			switch classifyError(result.err) {
			case ErrorTypeContextCancelled:
				ratesService.logger.Warnf("Provider cancelled: %v", result.err)
			case ErrorTypeNetworkError:
				ratesService.logger.Warnf("Provider network error: %v", result.err)
			case ErrorTypeInvalidResponse:
				ratesService.logger.Warnf("Provider invalid response: %v", result.err)
			default:
				ratesService.logger.Warnf("Provider failed: %v", result.err)
			}

			if firstError == nil {
				firstError = &ServiceError{
					Type:    ErrorTypeProviderFailed,
					Message: "provider request failed",
					Cause:   result.err,
				}
			}
		}
	}

	if requestContext.Err() != nil {
		return models.RatesResponse{}, &ServiceError{
			Type:    ErrorTypeContextCancelled,
			Message: "request context cancelled",
			Cause:   requestContext.Err(),
		}
	}

	ratesService.logger.Errorf("All %d exchange rate providers failed", len(ratesService.providers))
	return models.RatesResponse{}, firstError
}

// GetProviderStatus returns the status of all configured providers
func (ratesService *RatesService) GetProviderStatus() []ProviderStatus {
	statuses := make([]ProviderStatus, len(ratesService.providers))
	for i, provider := range ratesService.providers {
		statuses[i] = ProviderStatus{
			Name:     provider.GetName(),
			Enabled:  provider.IsEnabled(),
			Priority: provider.GetPriority(),
		}
	}
	return statuses
}

// ProviderStatus represents the status of a provider
type ProviderStatus struct {
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Priority int    `json:"priority"`
}
