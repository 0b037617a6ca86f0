package testutils

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"grocery-price-api/internal/config"
	"grocery-price-api/internal/logger"
	"grocery-price-api/internal/models"
)

// SampleCSV mirrors the layout of the cleaned grocery export:
// title, price (USD per lb), weight, unit, followed by extra columns.
const SampleCSV = `Name,Price,Weight,Unit,Weight_kg
Apple,$1.00,1,lb,0.453592
apple,$2.00,1,lb,0.453592
"APPLE",$3.00,1,lb,0.453592
Pineapple,$4.50,2,lb,0.907184
"Cheese, Aged Cheddar","$1,234.50",500,g,0.5
Bananas,$0.69,1,lb,0.453592
Broken row,$9.99
`

// SampleRecords is what SampleCSV parses into
func SampleRecords() []models.ProductRecord {
	return []models.ProductRecord{
		{Title: "Apple", Price: "$1.00", Weight: "1", Unit: "lb"},
		{Title: "apple", Price: "$2.00", Weight: "1", Unit: "lb"},
		{Title: "APPLE", Price: "$3.00", Weight: "1", Unit: "lb"},
		{Title: "Pineapple", Price: "$4.50", Weight: "2", Unit: "lb"},
		{Title: "Cheese, Aged Cheddar", Price: "$1,234.50", Weight: "500", Unit: "g"},
		{Title: "Bananas", Price: "$0.69", Weight: "1", Unit: "lb"},
	}
}

// WriteDatasetFile writes contents to a temporary CSV file and returns its path
func WriteDatasetFile(t testing.TB, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.csv")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write dataset file: %v", err)
	}
	return path
}

// MockLogger creates a quiet logger for testing
func MockLogger() *logger.Logger {
	return logger.New("error")
}

// MockConfig creates a mock configuration for testing
func MockConfig() *config.Config {
	return &config.Config{
		Port:      "3000",
		LogLevel:  "error",
		LogFormat: "json",

		StaticDir:       "public",
		DatasetPath:     "public/data/cleaned_sobeys.csv",
		DatasetCacheTTL: time.Minute,

		ExchangeRateProviders: []config.ExchangeRateProvider{
			{
				Name:     "primary",
				BaseURL:  "https://api.test.com/v4/latest/USD",
				Enabled:  true,
				Priority: 1,
				Timeout:  5 * time.Second,
			},
		},
		RatesCacheTTL:         time.Minute,
		MaxConcurrentRequests: 4,
		DefaultExchangeRate:   1.25,
		RateRefreshInterval:   time.Hour,

		UnsplashAccessKey: "test-access-key",
		UnsplashBaseURL:   "https://api.test.com/search/photos",
		UnsplashPerPage:   3,
		UnsplashTimeout:   5 * time.Second,
		ImageDebounce:     time.Second,

		RateLimitEnabled:  true,
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		RateLimitBurst:    10,
	}
}

// MockConfigWithMocks points the configuration at mock upstream servers and a dataset file
func MockConfigWithMocks(exchangeRateServerURL, unsplashServerURL, datasetPath string) *config.Config {
	cfg := MockConfig()
	cfg.DatasetPath = datasetPath
	cfg.ExchangeRateProviders = []config.ExchangeRateProvider{
		{
			Name:     "primary",
			BaseURL:  exchangeRateServerURL + "/v4/latest/USD",
			Enabled:  true,
			Priority: 1,
			Timeout:  5 * time.Second,
		},
	}
	cfg.UnsplashBaseURL = unsplashServerURL + "/search/photos"
	return cfg
}

// MockContextWithTimeout creates a context with timeout for testing
func MockContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
