package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/arledger/backend/internal/application/reconciliation"
	"github.com/arledger/backend/internal/infrastructure/config"
)

// ReportCacheFactory creates report caches based on configuration
type ReportCacheFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// ReportCacheFactoryOption is a functional option for configuring the factory
type ReportCacheFactoryOption func(*ReportCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) ReportCacheFactoryOption {
	return func(f *ReportCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory cache
// when Redis is unavailable. Default is true (allow fallback).
func WithInMemoryFallback(allow bool) ReportCacheFactoryOption {
	return func(f *ReportCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewReportCacheFactory creates a new factory
func NewReportCacheFactory(cfg config.RedisConfig, opts ...ReportCacheFactoryOption) *ReportCacheFactory {
	f := &ReportCacheFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisCache creates a Redis-backed report cache
func (f *ReportCacheFactory) CreateRedisCache() (reconciliation.ReportCache, error) {
	redisCfg := RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}

	cache, err := NewRedisReportCache(redisCfg, WithRedisCacheLogger(f.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis report cache: %w", err)
	}

	return cache, nil
}

// CreateInMemoryCache creates an in-memory report cache.
// Suitable for single-instance deployments and testing.
func (f *ReportCacheFactory) CreateInMemoryCache() reconciliation.ReportCache {
	return NewInMemoryReportCache(WithInMemoryCacheLogger(f.logger))
}

// CreateCache creates a report cache based on whether Redis is available.
// It tries Redis first and falls back to in-memory when allowed.
func (f *ReportCacheFactory) CreateCache() (reconciliation.ReportCache, error) {
	cache, err := f.CreateRedisCache()
	if err == nil {
		f.logger.Info("using Redis report cache")
		return cache, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for report cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory report cache. "+
		"Cached reports will not be shared or invalidated across instances.",
		zap.Error(err),
	)
	return f.CreateInMemoryCache(), nil
}
