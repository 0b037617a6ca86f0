package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"grocery-price-api/internal/autocomplete"
	"grocery-price-api/internal/config"
	"grocery-price-api/internal/deal"
	"grocery-price-api/internal/logger"
	"grocery-price-api/internal/middleware"
	"grocery-price-api/internal/models"
	"grocery-price-api/internal/ratelimit"
	"grocery-price-api/internal/units"
)

const version = "1.0.0"

// DatasetProvider returns the parsed grocery dataset
type DatasetProvider interface {
	FetchDataset(ctx context.Context) ([]models.ProductRecord, error)
}

// ExchangeRateSource owns the USD to CAD multiplier
type ExchangeRateSource interface {
	ExchangeRate(ctx context.Context) float64
	FetchExchangeRate(ctx context.Context) (float64, error)
	Current() (float64, bool)
}

// ImageSearcher looks up one image URL for a search term
type ImageSearcher interface {
	ImageURL(ctx context.Context, term string) (string, error)
}

// DealEvaluator classifies a price against the dataset average
type DealEvaluator interface {
	Evaluate(ctx context.Context, item string, price float64, unit units.Unit) (deal.Result, error)
}

// HandlerConfig holds the dependencies of the HTTP layer
type HandlerConfig struct {
	Logger        *logger.Logger
	Config        *config.Config
	Dataset       DatasetProvider
	ExchangeRates ExchangeRateSource
	Images        ImageSearcher
	Evaluator     DealEvaluator
	RateLimiter   *ratelimit.Limiter
}

// Handlers contains all HTTP handlers
type Handlers struct {
	logger        *logger.Logger
	configuration *config.Config
	dataset       DatasetProvider
	exchangeRates ExchangeRateSource
	images        ImageSearcher
	evaluator     DealEvaluator
	rateLimiter   *ratelimit.Limiter
	startTime     time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(handlerConfig HandlerConfig) *Handlers {
	return &Handlers{
		logger:        handlerConfig.Logger,
		configuration: handlerConfig.Config,
		dataset:       handlerConfig.Dataset,
		exchangeRates: handlerConfig.ExchangeRates,
		images:        handlerConfig.Images,
		evaluator:     handlerConfig.Evaluator,
		rateLimiter:   handlerConfig.RateLimiter,
		startTime:     time.Now(),
	}
}

// SetupRoutes configures all the routes using Gin
func (handlers *Handlers) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.RequestLogger(handlers.logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "X-Request-ID"},
		ExposeHeaders:   []string{"X-Request-ID"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/health", handlers.HealthCheck)

	apiGroup := router.Group("/api")
	if handlers.rateLimiter != nil {
		apiGroup.Use(handlers.rateLimitMiddleware())
	}
	{
		apiGroup.GET("/dataset", handlers.GetDataset)
		apiGroup.GET("/exchange-rate", handlers.GetExchangeRate)
		apiGroup.GET("/unsplash-image", handlers.GetUnsplashImage)
		apiGroup.GET("/suggestions", handlers.GetSuggestions)
		apiGroup.GET("/deal", handlers.GetDeal)
		apiGroup.GET("/convert", handlers.GetConvert)
	}

	router.NoRoute(handlers.ServeStatic)

	return router
}

// HealthCheck reports whether the dataset can be served
func (handlers *Handlers) HealthCheck(context *gin.Context) {
	healthStatus := "healthy"
	if _, datasetError := handlers.dataset.FetchDataset(context.Request.Context()); datasetError != nil {
		healthStatus = "unhealthy"
		handlers.logger.Warnf("Dataset health check failed: %v", datasetError)
	}

	context.JSON(http.StatusOK, models.HealthCheck{
		Status:    healthStatus,
		Timestamp: time.Now(),
		Version:   version,
		Uptime:    time.Since(handlers.startTime).String(),
	})
}

// GetDataset returns every parsed product record
func (handlers *Handlers) GetDataset(context *gin.Context) {
	records, fetchError := handlers.dataset.FetchDataset(context.Request.Context())
	if fetchError != nil {
		handlers.logger.Errorf("Failed to read dataset: %v", fetchError)
		handlers.writeErrorResponse(context, http.StatusInternalServerError, "Failed to read dataset", fetchError.Error())
		return
	}
	if records == nil {
		records = []models.ProductRecord{}
	}

	context.JSON(http.StatusOK, records)
}

// GetExchangeRate returns the USD to CAD multiplier. Upstream failures fall
// back to the last known good rate unless strict mode is on and no rate was
// ever fetched.
func (handlers *Handlers) GetExchangeRate(context *gin.Context) {
	rate, fetchError := handlers.exchangeRates.FetchExchangeRate(context.Request.Context())
	if fetchError != nil {
		_, fetched := handlers.exchangeRates.Current()
		if handlers.configuration.ExchangeRateStrict && !fetched {
			handlers.writeErrorResponse(context, http.StatusInternalServerError, "Failed to fetch exchange rate", fetchError.Error())
			return
		}
		handlers.logger.Warnf("Serving fallback exchange rate %v: %v", rate, fetchError)
	}

	context.JSON(http.StatusOK, models.ExchangeRateResponse{Rate: rate})
}

// GetUnsplashImage returns the first image for ?query=
func (handlers *Handlers) GetUnsplashImage(context *gin.Context) {
	query := strings.TrimSpace(context.Query("query"))
	if query == "" {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "Missing query", "query parameter is required")
		return
	}

	imageURL, fetchError := handlers.images.ImageURL(context.Request.Context(), query)
	if fetchError != nil {
		handlers.logger.Errorf("Failed to fetch image for %q: %v", query, fetchError)
		handlers.writeErrorResponse(context, http.StatusInternalServerError, "Failed to fetch image", fetchError.Error())
		return
	}

	context.JSON(http.StatusOK, models.ImageResponse{ImageURL: imageURL})
}

// GetSuggestions returns dataset titles containing ?q=
func (handlers *Handlers) GetSuggestions(context *gin.Context) {
	query := context.Query("q")

	records, fetchError := handlers.dataset.FetchDataset(context.Request.Context())
	if fetchError != nil {
		handlers.logger.Errorf("Failed to read dataset: %v", fetchError)
		handlers.writeErrorResponse(context, http.StatusInternalServerError, "Failed to read dataset", fetchError.Error())
		return
	}

	suggestions := autocomplete.Suggest(records, query)
	if suggestions == nil {
		suggestions = []string{}
	}

	context.JSON(http.StatusOK, models.SuggestionsResponse{Query: query, Suggestions: suggestions})
}

// GetDeal classifies ?price= for ?item= in ?unit= (usd_per_lb by default)
func (handlers *Handlers) GetDeal(context *gin.Context) {
	item := context.Query("item")

	price, parseError := strconv.ParseFloat(strings.TrimSpace(context.Query("price")), 64)
	if parseError != nil || units.Validate(price) != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "Invalid price", "price must be a non-negative number")
		return
	}

	unit, unitError := units.ParseUnit(context.DefaultQuery("unit", string(units.USDPerLb)))
	if unitError != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "Invalid unit", unitError.Error())
		return
	}

	result, evaluateError := handlers.evaluator.Evaluate(context.Request.Context(), item, price, unit)
	switch {
	case evaluateError == nil:
		context.JSON(http.StatusOK, result.Response())
	case errors.Is(evaluateError, deal.ErrUnknownItem):
		handlers.writeErrorResponse(context, http.StatusNotFound, "Unknown item", item)
	case errors.Is(evaluateError, units.ErrInvalidAmount), errors.Is(evaluateError, units.ErrUnknownUnit):
		handlers.writeErrorResponse(context, http.StatusBadRequest, "Invalid price", evaluateError.Error())
	default:
		handlers.logger.Errorf("Failed to evaluate deal for %q: %v", item, evaluateError)
		handlers.writeErrorResponse(context, http.StatusInternalServerError, "Failed to evaluate deal", evaluateError.Error())
	}
}

// GetConvert expresses ?amount= given in ?from= in the other unit
func (handlers *Handlers) GetConvert(context *gin.Context) {
	amount, parseError := strconv.ParseFloat(strings.TrimSpace(context.Query("amount")), 64)
	if parseError != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "Invalid amount", "amount must be a number")
		return
	}

	from, unitError := units.ParseUnit(context.Query("from"))
	if unitError != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "Invalid unit", unitError.Error())
		return
	}

	rate := handlers.exchangeRates.ExchangeRate(context.Request.Context())
	converted, convertError := units.Convert(amount, from, rate)
	if convertError != nil {
		status := http.StatusBadRequest
		if errors.Is(convertError, units.ErrInvalidRate) {
			status = http.StatusInternalServerError
		}
		handlers.writeErrorResponse(context, status, "Conversion failed", convertError.Error())
		return
	}

	context.JSON(http.StatusOK, models.ConvertResponse{
		From:      string(from),
		To:        string(from.Other()),
		Amount:    amount,
		Converted: converted,
		Rate:      rate,
	})
}

// ServeStatic serves files from the static directory and falls back to
// index.html for unknown non-API paths.
func (handlers *Handlers) ServeStatic(context *gin.Context) {
	requestPath := context.Request.URL.Path
	if (context.Request.Method != http.MethodGet && context.Request.Method != http.MethodHead) ||
		strings.HasPrefix(requestPath, "/api/") {
		handlers.writeErrorResponse(context, http.StatusNotFound, "Not found", requestPath)
		return
	}

	staticDir := handlers.configuration.StaticDir
	filePath := filepath.Join(staticDir, filepath.FromSlash(path.Clean("/"+requestPath)))
	if info, statError := os.Stat(filePath); statError == nil && !info.IsDir() {
		context.File(filePath)
		return
	}

	indexPath := filepath.Join(staticDir, "index.html")
	if _, statError := os.Stat(indexPath); statError != nil {
		handlers.writeErrorResponse(context, http.StatusNotFound, "Not found", requestPath)
		return
	}
	context.File(indexPath)
}

// writeErrorResponse writes an error response using Gin context
func (handlers *Handlers) writeErrorResponse(context *gin.Context, statusCode int, errorMessage, errorDetails string) {
	context.JSON(statusCode, models.ErrorResponse{
		Error:   errorMessage,
		Message: errorDetails,
		Code:    statusCode,
	})
}

// rateLimitMiddleware provides rate limiting using Gin middleware
func (handlers *Handlers) rateLimitMiddleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		clientIP := handlers.rateLimiter.GetClientIP(context.Request)

		if !handlers.rateLimiter.Allow(clientIP) {
			handlers.logger.Warnf("Rate limit exceeded for IP: %s", clientIP)
			context.Header("X-RateLimit-Limit", strconv.Itoa(handlers.rateLimiter.Configuration.RateLimitRequests))
			context.Header("X-RateLimit-Remaining", "0")
			context.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(handlers.rateLimiter.Configuration.RateLimitWindow).Unix(), 10))
			handlers.writeErrorResponse(context, http.StatusTooManyRequests, "Rate limit exceeded", "")
			context.Abort()
			return
		}

		context.Next()
	}
}
