// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package authz

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/tenantguard/internal/models"
)

// UserGrants is the resolved RBAC state of one user in one tenant.
type UserGrants struct {
	Roles       []models.Role       `json:"roles"`
	Permissions []models.Permission `json:"permissions"`
}

// PermissionCache caches UserGrants keyed by tenant and user. Entries are
// treated as read-only by callers.
//
// Every invalidation advances the tenant's generation. A caller reads the
// generation before loading grants from the catalog and passes it to Set,
// which drops the write if the tenant was invalidated in between.
//
// Backend failures are not returned: a cache that cannot answer reports a
// miss, and the resolver falls back to the catalog.
type PermissionCache interface {
	Get(ctx context.Context, tenantID, userID string) (*UserGrants, bool)
	// Generation returns the tenant's current generation. ok is false when
	// the backend cannot tell, in which case the caller must not Set.
	Generation(ctx context.Context, tenantID string) (gen uint64, ok bool)
	Set(ctx context.Context, tenantID, userID string, gen uint64, g *UserGrants)
	InvalidateUser(ctx context.Context, tenantID, userID string)
	InvalidateTenant(ctx context.Context, tenantID string)
}

// MemoryPermissionCache is a process-local PermissionCache with a fixed TTL.
type MemoryPermissionCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	tenants map[string]map[string]*cacheItem

	// seq numbers invalidations. gens holds the seq of each tenant's last
	// invalidation and cleared the seq of the last Clear.
	seq     uint64
	gens    map[string]uint64
	cleared uint64
}

type cacheItem struct {
	grants    *UserGrants
	expiresAt time.Time
}

// NewMemoryPermissionCache creates a cache. A non-positive ttl defaults to 5 minutes.
// Expired entries are dropped on read and by CleanupExpired.
func NewMemoryPermissionCache(ttl time.Duration) *MemoryPermissionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryPermissionCache{
		ttl:     ttl,
		now:     time.Now,
		tenants: make(map[string]map[string]*cacheItem),
		gens:    make(map[string]uint64),
	}
}

// Get retrieves cached grants.
func (c *MemoryPermissionCache) Get(_ context.Context, tenantID, userID string) (*UserGrants, bool) {
	c.mu.RLock()
	item, ok := c.tenants[tenantID][userID]
	c.mu.RUnlock()

	hit := ok && c.now().Before(item.expiresAt)
	RecordCacheLookup("memory", hit)
	if !hit {
		return nil, false
	}
	return item.grants, true
}

// Generation returns the seq of the last invalidation affecting tenantID.
func (c *MemoryPermissionCache) Generation(_ context.Context, tenantID string) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generationLocked(tenantID), true
}

func (c *MemoryPermissionCache) generationLocked(tenantID string) uint64 {
	return max(c.gens[tenantID], c.cleared)
}

// bumpLocked records an invalidation of tenantID.
func (c *MemoryPermissionCache) bumpLocked(tenantID string) {
	c.seq++
	c.gens[tenantID] = c.seq
}

// Set stores grants read at generation gen.
func (c *MemoryPermissionCache) Set(_ context.Context, tenantID, userID string, gen uint64, g *UserGrants) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generationLocked(tenantID) != gen {
		AuthzCacheStaleWritesTotal.Inc()
		return
	}
	users, ok := c.tenants[tenantID]
	if !ok {
		users = make(map[string]*cacheItem)
		c.tenants[tenantID] = users
	}
	users[userID] = &cacheItem{grants: g, expiresAt: c.now().Add(c.ttl)}
}

// InvalidateUser removes the cached grants of one user.
func (c *MemoryPermissionCache) InvalidateUser(_ context.Context, tenantID, userID string) {
	c.mu.Lock()
	delete(c.tenants[tenantID], userID)
	c.bumpLocked(tenantID)
	c.mu.Unlock()
	RecordCacheInvalidation("user")
}

// InvalidateTenant removes every cached entry of a tenant.
func (c *MemoryPermissionCache) InvalidateTenant(_ context.Context, tenantID string) {
	c.mu.Lock()
	delete(c.tenants, tenantID)
	c.bumpLocked(tenantID)
	c.mu.Unlock()
	RecordCacheInvalidation("tenant")
}

// Clear removes all cached grants.
func (c *MemoryPermissionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tenants = make(map[string]map[string]*cacheItem)
	c.seq++
	c.cleared = c.seq
	// Every tenant's generation is now at least cleared.
	c.gens = make(map[string]uint64)
}

// CleanupExpired drops expired entries and returns how many were removed.
func (c *MemoryPermissionCache) CleanupExpired(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed, size := 0, 0
	for tenantID, users := range c.tenants {
		for userID, item := range users {
			if !now.Before(item.expiresAt) {
				delete(users, userID)
				removed++
			}
		}
		if len(users) == 0 {
			delete(c.tenants, tenantID)
		}
		size += len(users)
	}
	AuthzCacheEntries.Set(float64(size))
	return removed, nil
}

// Len returns the number of cached entries, expired ones included.
func (c *MemoryPermissionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, users := range c.tenants {
		n += len(users)
	}
	return n
}
