package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arledger/backend/internal/application/reconciliation"
)

// Constants for Redis cache configuration
const (
	defaultScanBatchSize = 100
)

// RedisConfig holds connection settings for cache stores
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// RedisReportCache implements reconciliation.ReportCache using Redis.
// Report keys are already namespaced per organization, which lets
// InvalidateOrganization delete them with a single SCAN pattern.
type RedisReportCache struct {
	client     *redis.Client
	ownsClient bool // true if we created the client and should close it
	logger     *zap.Logger
}

// RedisReportCacheOption is a functional option for configuring the cache
type RedisReportCacheOption func(*RedisReportCache)

// WithRedisCacheLogger sets the logger for the cache
func WithRedisCacheLogger(logger *zap.Logger) RedisReportCacheOption {
	return func(c *RedisReportCache) {
		c.logger = logger
	}
}

// NewRedisReportCache creates a new Redis-based report cache
func NewRedisReportCache(cfg RedisConfig, opts ...RedisReportCacheOption) (*RedisReportCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cache := &RedisReportCache{
		client:     client,
		ownsClient: true, // We created this client, so we own it
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache, nil
}

// NewRedisReportCacheWithClient creates a cache with an existing Redis client
// Note: The caller retains ownership of the client and is responsible for closing it
func NewRedisReportCacheWithClient(client *redis.Client, opts ...RedisReportCacheOption) *RedisReportCache {
	cache := &RedisReportCache{
		client:     client,
		ownsClient: false, // Client is shared, don't close it
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// GetAgingReport retrieves a cached aging report. A cache miss returns (nil, nil).
func (c *RedisReportCache) GetAgingReport(ctx context.Context, key string) (*reconciliation.AgingReport, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.logger.Debug("Cache miss for aging report", zap.String("key", key))
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Failed to get aging report from cache",
			zap.String("key", key),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get report from cache: %w", err)
	}

	var report reconciliation.AgingReport
	if err := json.Unmarshal(data, &report); err != nil {
		c.logger.Error("Failed to unmarshal cached aging report",
			zap.String("key", key),
			zap.Error(err))
		// Delete corrupted cache entry
		_ = c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	c.logger.Debug("Cache hit for aging report", zap.String("key", key))
	return &report, nil
}

// SetAgingReport stores an aging report in cache
func (c *RedisReportCache) SetAgingReport(ctx context.Context, key string, report *reconciliation.AgingReport, ttl time.Duration) error {
	if report == nil {
		return nil
	}

	data, err := json.Marshal(report)
	if err != nil {
		c.logger.Error("Failed to marshal aging report",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Error("Failed to set aging report in cache",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to set report in cache: %w", err)
	}

	c.logger.Debug("Cached aging report",
		zap.String("key", key),
		zap.Duration("ttl", ttl))
	return nil
}

// InvalidateOrganization removes all cached reports for one organization
func (c *RedisReportCache) InvalidateOrganization(ctx context.Context, organizationID uuid.UUID) error {
	// Use SCAN to find report keys to avoid blocking Redis with KEYS command
	pattern := fmt.Sprintf("aging:%s:*", organizationID)
	var cursor uint64
	var deletedCount int64

	for {
		var keys []string
		var err error
		keys, cursor, err = c.client.Scan(ctx, cursor, pattern, defaultScanBatchSize).Result()
		if err != nil {
			c.logger.Error("Failed to scan report cache keys",
				zap.String("organization_id", organizationID.String()),
				zap.Error(err))
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}

		if len(keys) > 0 {
			deleted, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				c.logger.Error("Failed to delete report cache keys",
					zap.String("organization_id", organizationID.String()),
					zap.Error(err))
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
			deletedCount += deleted
		}

		if cursor == 0 {
			break
		}
	}

	c.logger.Debug("Invalidated cached aging reports",
		zap.String("organization_id", organizationID.String()),
		zap.Int64("deleted_count", deletedCount))
	return nil
}

// Close releases any resources held by the cache
func (c *RedisReportCache) Close() error {
	// Only close client if we own it
	if c.ownsClient {
		return c.client.Close()
	}
	return nil
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (c *RedisReportCache) GetClient() *redis.Client {
	return c.client
}

// Ensure RedisReportCache implements ReportCache
var _ reconciliation.ReportCache = (*RedisReportCache)(nil)
