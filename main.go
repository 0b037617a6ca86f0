package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"grocery-price-api/internal/api"
	"grocery-price-api/internal/config"
	"grocery-price-api/internal/dataset"
	"grocery-price-api/internal/deal"
	"grocery-price-api/internal/logger"
	"grocery-price-api/internal/platform"
	"grocery-price-api/internal/ratelimit"
	"grocery-price-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.New(cfg.LogLevel)

	shutdownCtx, stop := platform.NewShutdownContext(context.Background())
	defer stop()

	datasetStore := dataset.NewStore(cfg.DatasetPath, cfg.DatasetCacheTTL, logger)
	if records, err := datasetStore.FetchDataset(shutdownCtx); err != nil {
		logger.Warnf("Dataset not loaded at startup: %v", err)
	} else {
		logger.Infof("Loaded %d dataset records from %s", len(records), cfg.DatasetPath)
	}

	ratesService := service.NewRatesService(cfg, logger)
	exchangeRates := service.NewExchangeRateService(ratesService, cfg.DefaultExchangeRate, cfg.RateRefreshInterval, logger)
	exchangeRates.Start(shutdownCtx)

	rateLimiter := ratelimit.NewLimiter(cfg, logger)

	handlers := api.NewHandlers(api.HandlerConfig{
		Logger:        logger,
		Config:        cfg,
		Dataset:       datasetStore,
		ExchangeRates: exchangeRates,
		Images:        service.NewUnsplashService(cfg, logger),
		Evaluator:     deal.NewEvaluator(datasetStore, exchangeRates, logger),
		RateLimiter:   rateLimiter,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("Server running on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-shutdownCtx.Done()

	logger.Info("Shutting down server...")

	rateLimiter.Stop()
	exchangeRates.Stop()

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
