// Package client talks to a running grocery price API. It satisfies the
// dataset, rate and image sources the autocomplete controller needs.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"grocery-price-api/internal/logger"
	"grocery-price-api/internal/models"
	"grocery-price-api/internal/service"
)

// StatusError is returned for any non-200 answer
type StatusError struct {
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("GET %s: status %d: %s", e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("GET %s: status %d", e.Path, e.StatusCode)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// New creates a client for the API served at baseURL
func New(baseURL string, timeout time.Duration, logger *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

// FetchDataset calls GET /api/dataset
func (client *Client) FetchDataset(ctx context.Context) ([]models.ProductRecord, error) {
	var records []models.ProductRecord
	if err := client.getJSON(ctx, "/api/dataset", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetRates calls GET /api/exchange-rate and reports it as a one-entry USD
// table so it can back a service.ExchangeRateService.
func (client *Client) GetRates(ctx context.Context, baseCurrency string) (models.RatesResponse, error) {
	if baseCurrency != service.BaseCurrency {
		return models.RatesResponse{}, fmt.Errorf("unsupported base currency %q", baseCurrency)
	}

	var response models.ExchangeRateResponse
	if err := client.getJSON(ctx, "/api/exchange-rate", nil, &response); err != nil {
		return models.RatesResponse{}, err
	}

	return models.RatesResponse{
		Base:      service.BaseCurrency,
		Timestamp: time.Now().Unix(),
		Rates:     map[string]float64{service.TargetCurrency: response.Rate},
		Provider:  client.baseURL,
	}, nil
}

// ImageURL calls GET /api/unsplash-image
func (client *Client) ImageURL(ctx context.Context, term string) (string, error) {
	query := url.Values{}
	query.Set("query", term)

	var response models.ImageResponse
	if err := client.getJSON(ctx, "/api/unsplash-image", query, &response); err != nil {
		return "", err
	}
	return response.ImageURL, nil
}

func (client *Client) getJSON(ctx context.Context, path string, query url.Values, target interface{}) error {
	requestURL := client.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		statusError := &StatusError{Path: path, StatusCode: response.StatusCode}
		var errorResponse models.ErrorResponse
		if body, readErr := io.ReadAll(io.LimitReader(response.Body, 4096)); readErr == nil &&
			json.Unmarshal(body, &errorResponse) == nil {
			statusError.Message = errorResponse.Error
		}
		return statusError
	}

	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	client.logger.Debugf("GET %s ok", path)
	return nil
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, statusCode int) bool {
	var statusError *StatusError
	return errors.As(err, &statusError) && statusError.StatusCode == statusCode
}
