package dataset

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocery-price-api/internal/testutils"
)

func TestStore_FetchDataset(t *testing.T) {
	path := testutils.WriteDatasetFile(t, testutils.SampleCSV)
	store := NewStore(path, time.Minute, testutils.MockLogger())

	records, err := store.FetchDataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testutils.SampleRecords(), records)
}

func TestStore_ServesFromCacheWithinTTL(t *testing.T) {
	path := testutils.WriteDatasetFile(t, testutils.SampleCSV)
	store := NewStore(path, time.Hour, testutils.MockLogger())

	first, err := store.FetchDataset(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))

	second, err := store.FetchDataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStore_ReloadsAfterTTL(t *testing.T) {
	path := testutils.WriteDatasetFile(t, testutils.SampleCSV)
	store := NewStore(path, time.Nanosecond, testutils.MockLogger())

	_, err := store.FetchDataset(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("Name,Price,Weight,Unit\nKiwi,$5.00,1,lb\n"), 0o600))
	time.Sleep(time.Millisecond)

	records, err := store.FetchDataset(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Kiwi", records[0].Title)
}

func TestStore_MissingFile(t *testing.T) {
	store := NewStore("/nonexistent/dataset.csv", time.Minute, testutils.MockLogger())

	records, err := store.FetchDataset(context.Background())
	assert.Error(t, err)
	assert.Nil(t, records)
}

func TestStore_ConcurrentFetch(t *testing.T) {
	path := testutils.WriteDatasetFile(t, testutils.SampleCSV)
	store := NewStore(path, time.Minute, testutils.MockLogger())

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := store.FetchDataset(context.Background())
			if err == nil && len(records) != len(testutils.SampleRecords()) {
				t.Errorf("FetchDataset() returned %d records", len(records))
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
