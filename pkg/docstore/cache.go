package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/labkit/pkg/observability"
)

// CacheConfig configures CachedStore
type CacheConfig struct {
	// L1Size is the maximum number of documents held in process
	L1Size int
	// L1TTL bounds staleness of in-process entries
	L1TTL time.Duration
	// L2TTL is the Redis expiry; ignored when no Redis client is set
	L2TTL time.Duration
	// KeyPrefix namespaces Redis keys
	KeyPrefix string
}

// DefaultCacheConfig returns the default cache settings
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		L1Size:    1000,
		L1TTL:     30 * time.Second,
		L2TTL:     5 * time.Minute,
		KeyPrefix: "labkit:doc:",
	}
}

// CachedStore is a read-through cache over Get. Find is never cached since
// its results depend on every document in a collection. Writes invalidate
// both cache levels.
type CachedStore struct {
	Store
	l1      *lru.LRU[string, Document]
	l2      *redis.Client
	config  CacheConfig
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewCachedStore decorates store. redisClient may be nil to run L1 only.
func NewCachedStore(store Store, redisClient *redis.Client, cfg CacheConfig, metrics *observability.Metrics, logger *observability.Logger) *CachedStore {
	if cfg.L1Size <= 0 {
		cfg.L1Size = DefaultCacheConfig().L1Size
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultCacheConfig().KeyPrefix
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &CachedStore{
		Store:   store,
		l1:      lru.NewLRU[string, Document](cfg.L1Size, nil, cfg.L1TTL),
		l2:      redisClient,
		config:  cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// NewRedisClient parses a redis:// URL and pings the server
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (c *CachedStore) key(collection, id string) string {
	return collection + "/" + id
}

func (c *CachedStore) Get(ctx context.Context, collection, id string) (Document, error) {
	key := c.key(collection, id)

	if doc, ok := c.l1.Get(key); ok {
		c.metrics.RecordCacheHit("l1")
		return doc.Clone(), nil
	}
	c.metrics.RecordCacheMiss("l1")

	if c.l2 != nil {
		cached, err := c.l2.Get(ctx, c.config.KeyPrefix+key).Result()
		switch {
		case err == nil:
			var doc Document
			if jsonErr := json.Unmarshal([]byte(cached), &doc); jsonErr == nil {
				c.metrics.RecordCacheHit("l2")
				c.l1.Add(key, doc)
				return doc.Clone(), nil
			}
			c.metrics.RecordCacheMiss("l2")
		case errors.Is(err, redis.Nil):
			c.metrics.RecordCacheMiss("l2")
		default:
			c.logger.WithError(err).WithField("key", key).Warn("redis cache read failed")
		}
	}

	doc, err := c.Store.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	c.l1.Add(key, doc.Clone())
	if c.l2 != nil {
		if encoded, err := json.Marshal(doc); err == nil {
			if err := c.l2.Set(ctx, c.config.KeyPrefix+key, encoded, c.config.L2TTL).Err(); err != nil {
				c.logger.WithError(err).WithField("key", key).Warn("redis cache write failed")
			}
		}
	}
	return doc, nil
}

func (c *CachedStore) Insert(ctx context.Context, collection, id string, doc Document) error {
	err := c.Store.Insert(ctx, collection, id, doc)
	c.invalidate(ctx, collection, id)
	return err
}

func (c *CachedStore) Merge(ctx context.Context, collection, id string, doc Document) error {
	err := c.Store.Merge(ctx, collection, id, doc)
	c.invalidate(ctx, collection, id)
	return err
}

func (c *CachedStore) Delete(ctx context.Context, collection, id string) error {
	err := c.Store.Delete(ctx, collection, id)
	c.invalidate(ctx, collection, id)
	return err
}

// Invalidate drops a document from both cache levels
func (c *CachedStore) Invalidate(ctx context.Context, collection, id string) {
	c.invalidate(ctx, collection, id)
}

func (c *CachedStore) invalidate(ctx context.Context, collection, id string) {
	key := c.key(collection, id)
	c.l1.Remove(key)
	if c.l2 != nil {
		if err := c.l2.Del(ctx, c.config.KeyPrefix+key).Err(); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("redis cache invalidation failed")
		}
	}
}

// Close closes the Redis client and the wrapped store
func (c *CachedStore) Close() error {
	var errs []error
	if c.l2 != nil {
		if err := c.l2.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
