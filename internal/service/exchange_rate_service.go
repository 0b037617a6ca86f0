package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"grocery-price-api/internal/logger"
	"grocery-price-api/internal/models"
)

const (
	BaseCurrency   = "USD"
	TargetCurrency = "CAD"
)

// RatesFetcher is anything that can return a rate table for a base currency
type RatesFetcher interface {
	GetRates(ctx context.Context, baseCurrency string) (models.RatesResponse, error)
}

// ExchangeRateService owns the USD to CAD multiplier. It starts at a static
// default and is overwritten by every successful fetch; failed fetches keep
// the last known good value.
type ExchangeRateService struct {
	fetcher         RatesFetcher
	logger          *logger.Logger
	refreshInterval time.Duration

	rateMutex   sync.RWMutex
	rate        float64
	fetched     bool
	lastUpdated time.Time

	started     atomic.Bool
	stopOnce    sync.Once
	stopRefresh chan struct{}
	refreshDone chan struct{}
}

func NewExchangeRateService(fetcher RatesFetcher, defaultRate float64, refreshInterval time.Duration, logger *logger.Logger) *ExchangeRateService {
	return &ExchangeRateService{
		fetcher:         fetcher,
		logger:          logger,
		refreshInterval: refreshInterval,
		rate:            defaultRate,
		stopRefresh:     make(chan struct{}),
		refreshDone:     make(chan struct{}),
	}
}

// ExchangeRate returns the current multiplier without touching the network
func (exchangeRateService *ExchangeRateService) ExchangeRate(ctx context.Context) float64 {
	rate, _ := exchangeRateService.Current()
	return rate
}

// Current returns the multiplier and whether it came from a successful fetch
func (exchangeRateService *ExchangeRateService) Current() (float64, bool) {
	exchangeRateService.rateMutex.RLock()
	defer exchangeRateService.rateMutex.RUnlock()
	return exchangeRateService.rate, exchangeRateService.fetched
}

// LastUpdated is the time of the last successful fetch (zero if none)
func (exchangeRateService *ExchangeRateService) LastUpdated() time.Time {
	exchangeRateService.rateMutex.RLock()
	defer exchangeRateService.rateMutex.RUnlock()
	return exchangeRateService.lastUpdated
}

// Refresh fetches the USD table and stores its CAD entry
func (exchangeRateService *ExchangeRateService) Refresh(ctx context.Context) (float64, error) {
	rates, err := exchangeRateService.fetcher.GetRates(ctx, BaseCurrency)
	if err != nil {
		return 0, fmt.Errorf("fetch exchange rate: %w", err)
	}

	rate, ok := rates.Rates[TargetCurrency]
	if !ok || rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, &ServiceError{
			Type:    ErrorTypeInvalidResponse,
			Message: fmt.Sprintf("provider %s returned no usable %s rate", rates.Provider, TargetCurrency),
		}
	}

	exchangeRateService.rateMutex.Lock()
	exchangeRateService.rate = rate
	exchangeRateService.fetched = true
	exchangeRateService.lastUpdated = time.Now()
	exchangeRateService.rateMutex.Unlock()

	exchangeRateService.logger.Infof("Exchange rate fetched: %v", rate)
	return rate, nil
}

// FetchExchangeRate refreshes and falls back to the last known good value.
// The error is returned alongside the fallback so callers can decide.
func (exchangeRateService *ExchangeRateService) FetchExchangeRate(ctx context.Context) (float64, error) {
	rate, err := exchangeRateService.Refresh(ctx)
	if err != nil {
		exchangeRateService.logger.Errorf("Error fetching exchange rate: %v", err)
		fallback, _ := exchangeRateService.Current()
		return fallback, err
	}
	return rate, nil
}

// Start refreshes once and then on every tick until Stop is called
func (exchangeRateService *ExchangeRateService) Start(ctx context.Context) {
	if !exchangeRateService.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(exchangeRateService.refreshDone)

		exchangeRateService.FetchExchangeRate(ctx)
		if exchangeRateService.refreshInterval <= 0 {
			select {
			case <-exchangeRateService.stopRefresh:
			case <-ctx.Done():
			}
			return
		}

		ticker := time.NewTicker(exchangeRateService.refreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				exchangeRateService.FetchExchangeRate(ctx)
			case <-exchangeRateService.stopRefresh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the refresh loop started by Start and waits for it to exit
func (exchangeRateService *ExchangeRateService) Stop() {
	exchangeRateService.stopOnce.Do(func() {
		close(exchangeRateService.stopRefresh)
	})
	if exchangeRateService.started.Load() {
		<-exchangeRateService.refreshDone
	}
}
