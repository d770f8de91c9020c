package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arledger/backend/internal/application/reconciliation"
)

// Constants for in-memory cache configuration
const (
	defaultCleanupInterval = 30 * time.Second
)

// InMemoryReportCache implements reconciliation.ReportCache using in-memory
// storage. Suitable for single-instance deployments and testing; in
// distributed deployments each instance caches reports independently, so an
// allocation on one instance does not invalidate reports cached on another.
type InMemoryReportCache struct {
	reports sync.Map // map[string]*reportEntry
	logger  *zap.Logger
	stopCh  chan struct{} // Channel to stop the cleanup goroutine
	stopped int32         // Atomic flag to track if cache is stopped

	// Stats for monitoring
	hits   int64
	misses int64
}

// reportEntry wraps a cached report with expiration time
type reportEntry struct {
	report    *reconciliation.AgingReport
	expiresAt time.Time
}

// isExpired checks if the cache entry has expired
func (e *reportEntry) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

// InMemoryReportCacheOption is a functional option for configuring the cache
type InMemoryReportCacheOption func(*InMemoryReportCache)

// WithInMemoryCacheLogger sets the logger for the cache
func WithInMemoryCacheLogger(logger *zap.Logger) InMemoryReportCacheOption {
	return func(c *InMemoryReportCache) {
		c.logger = logger
	}
}

// NewInMemoryReportCache creates a new in-memory report cache
func NewInMemoryReportCache(opts ...InMemoryReportCacheOption) *InMemoryReportCache {
	cache := &InMemoryReportCache{
		logger: zap.NewNop(),
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(cache)
	}

	// Start background cleanup goroutine
	go cache.cleanupExpired()

	return cache
}

// GetAgingReport retrieves a cached aging report. A cache miss returns (nil, nil).
func (c *InMemoryReportCache) GetAgingReport(ctx context.Context, key string) (*reconciliation.AgingReport, error) {
	if value, ok := c.reports.Load(key); ok {
		entry := value.(*reportEntry)
		if !entry.isExpired() {
			atomic.AddInt64(&c.hits, 1)
			c.logger.Debug("Cache hit for aging report", zap.String("key", key))
			return entry.report, nil
		}
		// Expired, remove from cache
		c.reports.Delete(key)
	}

	atomic.AddInt64(&c.misses, 1)
	c.logger.Debug("Cache miss for aging report", zap.String("key", key))
	return nil, nil
}

// SetAgingReport stores an aging report in cache
func (c *InMemoryReportCache) SetAgingReport(ctx context.Context, key string, report *reconciliation.AgingReport, ttl time.Duration) error {
	if report == nil {
		return nil
	}

	entry := &reportEntry{
		report:    report,
		expiresAt: time.Now().Add(ttl),
	}

	c.reports.Store(key, entry)
	c.logger.Debug("Cached aging report",
		zap.String("key", key),
		zap.Duration("ttl", ttl))
	return nil
}

// InvalidateOrganization removes all cached reports for one organization
func (c *InMemoryReportCache) InvalidateOrganization(ctx context.Context, organizationID uuid.UUID) error {
	prefix := "aging:" + organizationID.String() + ":"
	var removed int

	c.reports.Range(func(key, _ any) bool {
		if strings.HasPrefix(key.(string), prefix) {
			c.reports.Delete(key)
			removed++
		}
		return true
	})

	c.logger.Debug("Invalidated cached aging reports",
		zap.String("organization_id", organizationID.String()),
		zap.Int("removed", removed))
	return nil
}

// Close releases any resources held by the cache
func (c *InMemoryReportCache) Close() error {
	// Only close once
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
	}
	return nil
}

// GetStats returns cache statistics
func (c *InMemoryReportCache) GetStats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// Count returns the number of entries in the cache
func (c *InMemoryReportCache) Count() (reports int) {
	c.reports.Range(func(_, _ any) bool {
		reports++
		return true
	})
	return reports
}

// cleanupExpired periodically removes expired entries from the cache
func (c *InMemoryReportCache) cleanupExpired() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.doCleanup()
		}
	}
}

// doCleanup removes expired entries
func (c *InMemoryReportCache) doCleanup() {
	var removed int

	c.reports.Range(func(key, value any) bool {
		entry := value.(*reportEntry)
		if entry.isExpired() {
			c.reports.Delete(key)
			removed++
		}
		return true
	})

	if removed > 0 {
		c.logger.Debug("Cleaned up expired report cache entries",
			zap.Int("removed", removed))
	}
}

// Ensure InMemoryReportCache implements ReportCache
var _ reconciliation.ReportCache = (*InMemoryReportCache)(nil)
