package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ExchangeRateProvider represents a single upstream exchange rate API
type ExchangeRateProvider struct {
	Name     string
	BaseURL  string
	APIKey   string
	Enabled  bool
	Priority int // Lower number = higher priority
	Timeout  time.Duration
}

// Config holds all configuration for the application
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	// Static front end and dataset
	StaticDir       string
	DatasetPath     string
	DatasetCacheTTL time.Duration

	// Exchange rate providers (dynamic list)
	ExchangeRateProviders []ExchangeRateProvider
	RatesCacheTTL         time.Duration
	MaxConcurrentRequests int
	DefaultExchangeRate   float64
	RateRefreshInterval   time.Duration
	ExchangeRateStrict    bool

	// Image search
	UnsplashAccessKey string
	UnsplashBaseURL   string
	UnsplashPerPage   int
	UnsplashTimeout   time.Duration
	ImageDebounce     time.Duration

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitBurst    int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	defaultRate, err := strconv.ParseFloat(getEnv("DEFAULT_EXCHANGE_RATE", "1.25"), 64)
	if err != nil || defaultRate <= 0 {
		return nil, fmt.Errorf("invalid DEFAULT_EXCHANGE_RATE: %q", os.Getenv("DEFAULT_EXCHANGE_RATE"))
	}

	return &Config{
		Port:      getEnv("PORT", "3000"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		StaticDir:       getEnv("STATIC_DIR", "public"),
		DatasetPath:     getEnv("DATASET_PATH", "public/data/cleaned_sobeys.csv"),
		DatasetCacheTTL: time.Duration(mustAtoi(getEnv("DATASET_CACHE_TTL_SECONDS", "60"), 60)) * time.Second,

		ExchangeRateProviders: loadExchangeRateProviders(),
		RatesCacheTTL:         time.Duration(mustAtoi(getEnv("RATES_CACHE_TTL_SECONDS", "60"), 60)) * time.Second,
		MaxConcurrentRequests: mustAtoi(getEnv("MAX_CONCURRENT_REQUESTS", "4"), 4),
		DefaultExchangeRate:   defaultRate,
		RateRefreshInterval:   time.Duration(mustAtoi(getEnv("RATE_REFRESH_INTERVAL_SECONDS", "3600"), 3600)) * time.Second,
		ExchangeRateStrict:    getEnv("EXCHANGE_RATE_STRICT", "false") == "true",

		UnsplashAccessKey: getEnv("UNSPLASH_ACCESS_KEY", ""),
		UnsplashBaseURL:   getEnv("UNSPLASH_BASE_URL", "https://api.unsplash.com/search/photos"),
		UnsplashPerPage:   mustAtoi(getEnv("UNSPLASH_PER_PAGE", "3"), 3),
		UnsplashTimeout:   time.Duration(mustAtoi(getEnv("UNSPLASH_TIMEOUT", "10"), 10)) * time.Second,
		ImageDebounce:     time.Duration(mustAtoi(getEnv("IMAGE_DEBOUNCE_MS", "1000"), 1000)) * time.Millisecond,

		RateLimitEnabled:  getEnv("RATE_LIMIT_ENABLED", "true") == "true",
		RateLimitRequests: mustAtoi(getEnv("RATE_LIMIT_REQUESTS", "100"), 100),
		RateLimitWindow:   time.Duration(mustAtoi(getEnv("RATE_LIMIT_WINDOW_SECONDS", "60"), 60)) * time.Second,
		RateLimitBurst:    mustAtoi(getEnv("RATE_LIMIT_BURST", "20"), 20),
	}, nil
}

// loadExchangeRateProviders loads exchange rate providers from environment variables.
// EXCHANGE_RATE_API is a complete URL (e.g. https://api.exchangerate-api.com/v4/latest/USD)
// and is used as-is; the remaining providers get the base currency appended.
func loadExchangeRateProviders() []ExchangeRateProvider {
	providers := []ExchangeRateProvider{
		{
			Name:     "primary",
			BaseURL:  getEnv("EXCHANGE_RATE_API", "https://api.exchangerate-api.com/v4/latest/USD"),
			Enabled:  getEnv("EXCHANGE_RATE_API_ENABLED", "true") == "true",
			Priority: 1,
			Timeout:  time.Duration(mustAtoi(getEnv("EXCHANGE_RATE_API_TIMEOUT", "10"), 10)) * time.Second,
		},
		{
			Name:     "erapi",
			BaseURL:  getEnv("ERAPI_BASE_URL", "https://open.er-api.com/v6/latest"),
			APIKey:   getEnv("ERAPI_API_KEY", ""),
			Enabled:  getEnv("ERAPI_ENABLED", "false") == "true",
			Priority: 2,
			Timeout:  time.Duration(mustAtoi(getEnv("ERAPI_TIMEOUT", "10"), 10)) * time.Second,
		},
		{
			Name:     "frankfurter",
			BaseURL:  getEnv("FRANKFURTER_API_BASE_URL", "https://api.frankfurter.app/latest"),
			Enabled:  getEnv("FRANKFURTER_ENABLED", "false") == "true",
			Priority: 3,
			Timeout:  time.Duration(mustAtoi(getEnv("FRANKFURTER_TIMEOUT", "10"), 10)) * time.Second,
		},
	}

	providers = append(providers, loadAdditionalProviders()...)

	enabledProviders := []ExchangeRateProvider{}
	for _, provider := range providers {
		if provider.Enabled && provider.BaseURL != "" {
			enabledProviders = append(enabledProviders, provider)
		}
	}

	// Sort by priority (lower number = higher priority)
	for i := 0; i < len(enabledProviders); i++ {
		for j := i + 1; j < len(enabledProviders); j++ {
			if enabledProviders[i].Priority > enabledProviders[j].Priority {
				enabledProviders[i], enabledProviders[j] = enabledProviders[j], enabledProviders[i]
			}
		}
	}

	return enabledProviders
}

// loadAdditionalProviders loads PROVIDER_1_*, PROVIDER_2_*, ... until a name is missing
func loadAdditionalProviders() []ExchangeRateProvider {
	providers := []ExchangeRateProvider{}

	for i := 1; i <= 10; i++ {
		name := getEnv(fmt.Sprintf("PROVIDER_%d_NAME", i), "")
		if name == "" {
			break
		}

		provider := ExchangeRateProvider{
			Name:     name,
			BaseURL:  getEnv(fmt.Sprintf("PROVIDER_%d_BASE_URL", i), ""),
			APIKey:   getEnv(fmt.Sprintf("PROVIDER_%d_API_KEY", i), ""),
			Enabled:  getEnv(fmt.Sprintf("PROVIDER_%d_ENABLED", i), "true") == "true",
			Priority: mustAtoi(getEnv(fmt.Sprintf("PROVIDER_%d_PRIORITY", i), "10"), 10),
			Timeout:  time.Duration(mustAtoi(getEnv(fmt.Sprintf("PROVIDER_%d_TIMEOUT", i), "10"), 10)) * time.Second,
		}

		if provider.BaseURL != "" {
			providers = append(providers, provider)
		}
	}

	return providers
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func mustAtoi(s string, fallback int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return i
}
