package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/harperhq/clientiq/pkg/metrics"
)

// ResultCache keeps successful query outcomes keyed by company and
// normalized question text. Entries expire after the configured TTL so
// answers drift with the underlying tables rather than pinning stale
// rows forever.
type ResultCache struct {
	cache *ttlcache.Cache[string, QueryOutcome]
}

// NewResultCache creates a bounded TTL cache. A zero capacity means
// unbounded.
func NewResultCache(capacity uint64, ttl time.Duration) *ResultCache {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, QueryOutcome](ttl),
		ttlcache.WithCapacity[string, QueryOutcome](capacity),
	)
	go cache.Start()
	return &ResultCache{cache: cache}
}

func cacheKey(companyID int64, question string) string {
	return fmt.Sprintf("%d:%s", companyID, strings.ToLower(strings.TrimSpace(question)))
}

// Get returns a cached outcome for the question, if present.
func (c *ResultCache) Get(companyID int64, question string) (QueryOutcome, bool) {
	item := c.cache.Get(cacheKey(companyID, question))
	if item == nil {
		metrics.CacheMissesTotal.Inc()
		return QueryOutcome{}, false
	}
	metrics.CacheHitsTotal.Inc()
	return item.Value(), true
}

// Set stores a successful outcome under the question's cache key.
func (c *ResultCache) Set(companyID int64, question string, outcome QueryOutcome) {
	c.cache.Set(cacheKey(companyID, question), outcome, ttlcache.DefaultTTL)
}

// Stop halts the background expiration loop.
func (c *ResultCache) Stop() {
	c.cache.Stop()
}
