package cache

import (
	"sync"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

// ProductCache keeps the latest committed snapshot of recently read or
// written products. Entries are copied in and out.
type ProductCache struct {
	mu       sync.RWMutex
	cache    map[string]*storage.Product
	capacity int
	// generation counts deletes and evictions. A read that started before
	// one must not put its snapshot back.
	generation uint64
	logger     *zap.Logger
}

func NewProductCache(capacity int, logger *zap.Logger) *ProductCache {
	return &ProductCache{
		cache:    make(map[string]*storage.Product),
		capacity: capacity,
		logger:   logger,
	}
}

func (c *ProductCache) Get(productID string) (*storage.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	product, found := c.cache[productID]
	if !found {
		return nil, false
	}
	productCopy := *product
	return &productCopy, true
}

func (c *ProductCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Set stores p unless a newer version is already cached or some entry was
// deleted since gen.
func (c *ProductCache) Set(p *storage.Product, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.logger.Debug("cache: skipped stale product", zap.String("product_id", p.ID), zap.Int("version", p.Version))
		return
	}
	if existing, found := c.cache[p.ID]; found && existing.Version > p.Version {
		return
	}
	if _, found := c.cache[p.ID]; !found && c.capacity > 0 && len(c.cache) >= c.capacity {
		c.evictOneLocked()
	}
	productCopy := *p
	c.cache[p.ID] = &productCopy
	metrics.ProductCacheItems.Set(float64(len(c.cache)))
	c.logger.Debug("cache: set product", zap.String("product_id", p.ID), zap.Int("version", p.Version))
}

func (c *ProductCache) Delete(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if _, found := c.cache[productID]; found {
		delete(c.cache, productID)
		metrics.ProductCacheItems.Set(float64(len(c.cache)))
		c.logger.Debug("cache: deleted product", zap.String("product_id", productID))
	}
}

func (c *ProductCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// evictOneLocked drops the entry with the oldest updated_at.
func (c *ProductCache) evictOneLocked() {
	var (
		oldestID string
		oldest   *storage.Product
	)
	for id, p := range c.cache {
		if oldest == nil || p.UpdatedAt.Before(oldest.UpdatedAt) {
			oldestID, oldest = id, p
		}
	}
	if oldest != nil {
		delete(c.cache, oldestID)
		c.generation++
	}
}
