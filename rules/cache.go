package rules

import (
	"sync"
	"time"
)

// RulesCache caches the active rules list so an evaluation pass does
// not hit the store for every incoming event.
type RulesCache interface {
	// Get returns cached rules, or nil on miss/expiry.
	Get() []*Rule

	// Set stores the rules list.
	Set(rules []*Rule)

	// Invalidate clears the cache, forcing a refresh on next Get.
	Invalidate()
}

// CacheConfig controls cache expiry. TTL 0 means no expiration: the
// cache only refreshes when a rule mutation invalidates it.
type CacheConfig struct {
	TTL time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}

// InMemoryRulesCache is the default RulesCache; thread-safe.
type InMemoryRulesCache struct {
	rules    []*Rule
	cachedAt time.Time
	config   CacheConfig
	valid    bool
	mu       sync.RWMutex
}

func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{config: config}
}

func (c *InMemoryRulesCache) Get() []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid {
		return nil
	}
	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil
	}

	// Copy so callers cannot mutate the cached slice.
	out := make([]*Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func (c *InMemoryRulesCache) Set(rules []*Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules = make([]*Rule, len(rules))
	copy(c.rules, rules)
	c.cachedAt = time.Now()
	c.valid = true
}

func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.rules = nil
}
