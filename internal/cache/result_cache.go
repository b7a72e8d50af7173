// Package cache holds the process-local result cache. It is deliberately
// memory-resident: losing it on restart only costs a cache miss, never
// stale data.
package cache

import (
	"strings"
	"sync"
	"time"

	"dq-agent/internal/domain/model"
	"dq-agent/internal/infra/metrics"
)

// ResultCache maps a case-normalized username to the most recent completed
// job result for that user. Entries expire lazily: age is checked on every
// read and expired entries are deleted in place. There is no sweeper.
type ResultCache struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]*model.CachedJobResult
	now func() time.Time
}

func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		ttl: ttl,
		m:   make(map[string]*model.CachedJobResult),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Put overwrites any prior entry for the user. A newer completion for the
// same user always wins.
func (c *ResultCache) Put(userKey string, r *model.CachedJobResult) {
	key := normalize(userKey)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = r
}

// Get returns the cached result for the user, or nil. The expiry check and
// the delete happen under the same lock as Put, so a put racing with an
// expiring read cannot be lost.
func (c *ResultCache) Get(userKey string) *model.CachedJobResult {
	key := normalize(userKey)
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.m[key]
	if !ok {
		metrics.IncCacheRequest("job_result", "miss")
		return nil
	}
	if c.expired(r) {
		delete(c.m, key)
		metrics.IncCacheRequest("job_result", "expired")
		return nil
	}
	metrics.IncCacheRequest("job_result", "hit")
	return r
}

// expired treats an entry without a usable completion timestamp as already
// expired: the cache fails toward a miss, never toward stale data.
func (c *ResultCache) expired(r *model.CachedJobResult) bool {
	if r.CompletionTime.IsZero() {
		return true
	}
	return c.now().Sub(r.CompletionTime) > c.ttl
}

// Len reports the current entry count, including not-yet-swept expired
// entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func normalize(userKey string) string {
	return strings.ToLower(strings.TrimSpace(userKey))
}
