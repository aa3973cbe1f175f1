package authz

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// grantsCache memoizes a user's effective grants (roles expanded through
// the hierarchy) per tenant. Entries expire on TTL and are invalidated
// synchronously by every role or grant mutation, so a revocation is
// visible on the next check after commit.
type grantsCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	maxSize int
}

type cacheEntry struct {
	grants    []*Grant
	expiresAt time.Time
	// notAfter caps the entry at the earliest expiry among the UserRoles
	// that produced it, so an assignment lapsing mid-TTL stops serving.
	notAfter time.Time
}

func newGrantsCache(ttl time.Duration, maxSize int) *grantsCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &grantsCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

func cacheKey(tenantID, userID int64) string {
	return fmt.Sprintf("%d:%d", tenantID, userID)
}

func (c *grantsCache) Get(tenantID, userID int64, now time.Time) ([]*Grant, bool) {
	key := cacheKey(tenantID, userID)
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) || e.lapsed(now) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.grants, true
}

func (e *cacheEntry) lapsed(now time.Time) bool {
	return !e.notAfter.IsZero() && now.After(e.notAfter)
}

// Set stores the grants. A non-zero notAfter caps the entry's lifetime
// regardless of TTL.
func (c *grantsCache) Set(tenantID, userID int64, grants []*Grant, notAfter time.Time) {
	key := cacheKey(tenantID, userID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictExpired()
		if len(c.entries) >= c.maxSize {
			c.evictOne()
		}
	}

	c.entries[key] = &cacheEntry{
		grants:    grants,
		expiresAt: time.Now().Add(c.ttl),
		notAfter:  notAfter,
	}
}

func (c *grantsCache) InvalidateUser(tenantID, userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(tenantID, userID))
}

// InvalidateTenant drops every user of the tenant. Used for role and grant
// mutations, which can affect any holder of the role.
func (c *grantsCache) InvalidateTenant(tenantID int64) {
	prefix := fmt.Sprintf("%d:", tenantID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// evictExpired removes all expired entries. Must hold write lock.
func (c *grantsCache) evictExpired() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// evictOne removes one arbitrary entry. Must hold write lock.
func (c *grantsCache) evictOne() {
	for k := range c.entries {
		delete(c.entries, k)
		return
	}
}
