package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/labkit/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts Get calls that reach the backend
type countingStore struct {
	Store
	gets int
}

func (c *countingStore) Get(ctx context.Context, collection, id string) (Document, error) {
	c.gets++
	return c.Store.Get(ctx, collection, id)
}

func setupCachedStore(t *testing.T, withRedis bool) (*CachedStore, *countingStore, *miniredis.Miniredis, *observability.Metrics) {
	t.Helper()
	backend := &countingStore{Store: NewMemoryStore()}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	var client *redis.Client
	var mr *miniredis.Miniredis
	if withRedis {
		mr = miniredis.RunT(t)
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}

	cfg := DefaultCacheConfig()
	cfg.L1TTL = time.Minute
	return NewCachedStore(backend, client, cfg, metrics, nil), backend, mr, metrics
}

func TestCachedStore_L1ReadThrough(t *testing.T) {
	ctx := context.Background()
	cache, backend, _, metrics := setupCachedStore(t, false)
	require.NoError(t, cache.Merge(ctx, "roles", "r1", Document{"name": "viewer"}))

	for i := 0; i < 3; i++ {
		doc, err := cache.Get(ctx, "roles", "r1")
		require.NoError(t, err)
		assert.Equal(t, "viewer", doc.String("name"))
	}

	assert.Equal(t, 1, backend.gets)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("l1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("l1")))
}

func TestCachedStore_WriteInvalidates(t *testing.T) {
	ctx := context.Background()
	cache, backend, mr, _ := setupCachedStore(t, true)
	require.NoError(t, cache.Merge(ctx, "roles", "r1", Document{"name": "viewer"}))

	_, err := cache.Get(ctx, "roles", "r1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("labkit:doc:roles/r1"))

	require.NoError(t, cache.Merge(ctx, "roles", "r1", Document{"name": "analyst"}))
	assert.False(t, mr.Exists("labkit:doc:roles/r1"))

	doc, err := cache.Get(ctx, "roles", "r1")
	require.NoError(t, err)
	assert.Equal(t, "analyst", doc.String("name"))
	assert.Equal(t, 2, backend.gets)

	require.NoError(t, cache.Delete(ctx, "roles", "r1"))
	_, err = cache.Get(ctx, "roles", "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStore_L2Hit(t *testing.T) {
	ctx := context.Background()
	cache, backend, mr, metrics := setupCachedStore(t, true)
	require.NoError(t, mr.Set("labkit:doc:roles/r9", `{"id":"r9","name":"technician"}`))

	doc, err := cache.Get(ctx, "roles", "r9")
	require.NoError(t, err)
	assert.Equal(t, "technician", doc.String("name"))
	assert.Equal(t, 0, backend.gets)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("l2")))
}

func TestCachedStore_RedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	cache, backend, mr, _ := setupCachedStore(t, true)
	require.NoError(t, cache.Store.Merge(ctx, "roles", "r1", Document{"name": "viewer"}))
	mr.Close()

	doc, err := cache.Get(ctx, "roles", "r1")
	require.NoError(t, err)
	assert.Equal(t, "viewer", doc.String("name"))
	assert.Equal(t, 1, backend.gets)
}

func TestCachedStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	cache, _, _, _ := setupCachedStore(t, false)
	require.NoError(t, cache.Merge(ctx, "roles", "r1", Document{"name": "viewer"}))

	doc, err := cache.Get(ctx, "roles", "r1")
	require.NoError(t, err)
	doc["name"] = "mutated"

	again, err := cache.Get(ctx, "roles", "r1")
	require.NoError(t, err)
	assert.Equal(t, "viewer", again.String("name"))
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store := Instrument(NewMemoryStore(), "memory", metrics)

	require.NoError(t, store.Merge(ctx, "samples", "s1", Document{"name": "x"}))
	_, err := store.Get(ctx, "samples", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DocstoreOperationsTotal.WithLabelValues("merge", "memory", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DocstoreOperationsTotal.WithLabelValues("get", "memory", "success")))
}
