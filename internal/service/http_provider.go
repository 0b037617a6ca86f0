package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"grocery-price-api/internal/config"
	"grocery-price-api/internal/logger"
	"grocery-price-api/internal/models"
)

// HTTPExchangeRateProvider implements ExchangeRateProvider for HTTP-based APIs
type HTTPExchangeRateProvider struct {
	configuration config.ExchangeRateProvider
	logger        *logger.Logger
	httpClient    *http.Client
}

// NewHTTPExchangeRateProvider creates a new HTTP exchange rate provider
func NewHTTPExchangeRateProvider(configuration config.ExchangeRateProvider, logger *logger.Logger) *HTTPExchangeRateProvider {
	timeout := configuration.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPExchangeRateProvider{
		configuration: configuration,
		logger:        logger,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// GetName returns the provider name
func (provider *HTTPExchangeRateProvider) GetName() string {
	return provider.configuration.Name
}

// IsEnabled returns whether the provider is enabled
func (provider *HTTPExchangeRateProvider) IsEnabled() bool {
	return provider.configuration.Enabled
}

// GetPriority returns the provider priority
func (provider *HTTPExchangeRateProvider) GetPriority() int {
	return provider.configuration.Priority
}

// GetRates fetches exchange rates from the provider
func (provider *HTTPExchangeRateProvider) GetRates(ctx context.Context, baseCurrency string) (models.RatesResponse, error) {
	requestURL := provider.buildURL(baseCurrency)
	provider.logger.Debugf("Fetching exchange rate from: %s", provider.configuration.Name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return models.RatesResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := provider.httpClient.Do(req)
	if err != nil {
		return models.RatesResponse{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.RatesResponse{}, &ServiceError{
			Type:    ErrorTypeInvalidResponse,
			Message: fmt.Sprintf("provider %s returned status %d", provider.configuration.Name, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.RatesResponse{}, fmt.Errorf("failed to read response body: %w", err)
	}

	return provider.parseResponse(body, baseCurrency)
}

// buildURL constructs the URL for the provider based on its configuration
func (provider *HTTPExchangeRateProvider) buildURL(baseCurrency string) string {
	baseURL := provider.configuration.BaseURL

	switch provider.configuration.Name {
	case "primary":
		// Full URL configured via EXCHANGE_RATE_API, base already included
		return baseURL
	case "erapi":
		// https://open.er-api.com/v6/latest/USD
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(baseURL, "/"), url.PathEscape(baseCurrency))
	case "frankfurter":
		// https://api.frankfurter.app/latest?from=USD
		return fmt.Sprintf("%s?from=%s", baseURL, url.QueryEscape(baseCurrency))
	default:
		query := url.Values{}
		query.Set("base", baseCurrency)
		if provider.configuration.APIKey != "" {
			query.Set("app_id", provider.configuration.APIKey)
		}
		return baseURL + "?" + query.Encode()
	}
}

// parseResponse accepts the field names used by the common free rate APIs
func (provider *HTTPExchangeRateProvider) parseResponse(body []byte, baseCurrency string) (models.RatesResponse, error) {
	var data struct {
		Base               string             `json:"base"`
		BaseCode           string             `json:"base_code"`
		Timestamp          int64              `json:"timestamp"`
		TimeLastUpdateUnix int64              `json:"time_last_update_unix"`
		Rates              map[string]float64 `json:"rates"`
	}

	if err := json.Unmarshal(body, &data); err != nil {
		return models.RatesResponse{}, &ServiceError{
			Type:    ErrorTypeInvalidResponse,
			Message: fmt.Sprintf("failed to parse %s response", provider.configuration.Name),
			Cause:   err,
		}
	}
	if len(data.Rates) == 0 {
		return models.RatesResponse{}, &ServiceError{
			Type:    ErrorTypeInvalidResponse,
			Message: fmt.Sprintf("%s response contains no rates", provider.configuration.Name),
		}
	}

	response := models.RatesResponse{
		Base:      data.Base,
		Timestamp: data.Timestamp,
		Rates:     data.Rates,
		Provider:  provider.configuration.Name,
	}
	if response.Base == "" {
		response.Base = data.BaseCode
	}
	if response.Base == "" {
		response.Base = baseCurrency
	}
	if response.Timestamp == 0 {
		response.Timestamp = data.TimeLastUpdateUnix
	}
	return response, nil
}
