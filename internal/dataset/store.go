package dataset

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"grocery-price-api/internal/logger"
	"grocery-price-api/internal/models"
)

type cacheEntry struct {
	records   []models.ProductRecord
	expiresAt time.Time
}

// Store serves the dataset from a CSV file on disk, re-reading it once the
// cached copy is older than the TTL. Returned slices are shared and must not
// be modified.
type Store struct {
	path   string
	ttl    time.Duration
	logger *logger.Logger

	cacheMutex sync.RWMutex
	cache      cacheEntry

	singleFlightGroup singleflight.Group
}

func NewStore(path string, ttl time.Duration, logger *logger.Logger) *Store {
	return &Store{
		path:   path,
		ttl:    ttl,
		logger: logger,
	}
}

// FetchDataset returns the parsed dataset, from cache when still fresh.
func (store *Store) FetchDataset(ctx context.Context) ([]models.ProductRecord, error) {
	store.cacheMutex.RLock()
	if store.cache.records != nil && time.Now().Before(store.cache.expiresAt) {
		records := store.cache.records
		store.cacheMutex.RUnlock()
		return records, nil
	}
	store.cacheMutex.RUnlock()

	result, err, _ := store.singleFlightGroup.Do("dataset", func() (interface{}, error) {
		return store.load()
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result.([]models.ProductRecord), nil
}

func (store *Store) load() ([]models.ProductRecord, error) {
	store.logger.Infof("Reading dataset from: %s", store.path)

	file, err := os.Open(store.path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()

	records, err := Parse(file, store.logger)
	if err != nil {
		return nil, err
	}

	store.cacheMutex.Lock()
	store.cache = cacheEntry{
		records:   records,
		expiresAt: time.Now().Add(store.ttl),
	}
	store.cacheMutex.Unlock()

	store.logger.Debugf("Loaded %d dataset records", len(records))
	return records, nil
}
