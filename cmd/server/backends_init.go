// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/tenantguard/internal/auth"
	"github.com/tomtom215/tenantguard/internal/authz"
	"github.com/tomtom215/tenantguard/internal/config"
	"github.com/tomtom215/tenantguard/internal/logging"
	"github.com/tomtom215/tenantguard/internal/supervisor/services"
)

const backendTimeout = 5 * time.Second

// expirer is implemented by backends that need periodic sweeping. Redis
// backends rely on key TTLs instead.
type expirer interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// openRedis connects when any backend needs redis and returns nil otherwise.
func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.Cache.Backend != "redis" && cfg.Blacklist.Backend != "redis" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
	}

	logging.Info().Str("addr", cfg.Redis.Addr).Int("db", cfg.Redis.DB).Msg("Connected to Redis")
	return client, nil
}

// permissionCache pairs the selected cache with its maintenance hooks.
// PermissionCache is nil for the "none" backend.
type permissionCache struct {
	authz.PermissionCache

	// cleanup sweeps expired entries; nil when the backend expires its own keys.
	cleanup services.CleanupFunc

	// flush drops everything; used when catalog notifications may have been missed.
	flush func()
}

func newPermissionCache(cfg config.CacheConfig, client *redis.Client) permissionCache {
	switch cfg.Backend {
	case "memory":
		c := authz.NewMemoryPermissionCache(cfg.TTL)
		return permissionCache{PermissionCache: c, cleanup: c.CleanupExpired, flush: c.Clear}

	case "redis":
		c := authz.NewRedisPermissionCache(client, cfg.KeyPrefix, cfg.TTL)
		return permissionCache{
			PermissionCache: c,
			flush: func() {
				ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
				defer cancel()
				if err := c.Flush(ctx); err != nil {
					// Entries still expire after CACHE_TTL.
					logging.Warn().Err(err).Msg("Failed to flush permission cache")
				}
			},
		}

	default:
		return permissionCache{}
	}
}

func openBlacklist(cfg config.BlacklistConfig, client *redis.Client) (auth.Blacklist, error) {
	switch cfg.Backend {
	case "badger":
		bl, err := auth.OpenBadgerBlacklist(cfg.Path, cfg.KeyPrefix)
		if err != nil {
			return nil, err
		}
		logging.Info().Str("path", cfg.Path).Msg("Token blacklist opened (badger)")
		return bl, nil

	case "redis":
		return auth.NewRedisBlacklist(client, cfg.KeyPrefix), nil

	default:
		return auth.NewMemoryBlacklist(), nil
	}
}

func janitorTasks(blacklist auth.Blacklist, cache permissionCache) []services.JanitorTask {
	tasks := []services.JanitorTask{services.UptimeTask()}
	if e, ok := blacklist.(expirer); ok {
		tasks = append(tasks, services.JanitorTask{Name: "blacklist", Run: e.CleanupExpired})
	}
	if cache.cleanup != nil {
		tasks = append(tasks, services.JanitorTask{Name: "permission_cache", Run: cache.cleanup})
	}
	return tasks
}
