// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package authz

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/tenantguard/internal/logging"
)

// RedisPermissionCache shares resolved grants between instances.
//
// Each tenant keeps an index set of its entry keys so a tenant-wide
// invalidation can delete them without a SCAN. Tenant and user IDs are
// query-escaped in keys, so an ID containing ':' cannot alias another
// tenant's entry.
//
// Generations live in a per-tenant counter, incremented by invalidations,
// and a prefix-wide epoch, incremented by Flush. Set WATCHes both.
type RedisPermissionCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisPermissionCache wraps client. The caller owns the client.
func NewRedisPermissionCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisPermissionCache {
	if prefix == "" {
		prefix = "tenantguard:"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisPermissionCache{client: client, prefix: prefix, ttl: ttl}
}

// errStaleGeneration aborts a Set whose grants predate an invalidation.
var errStaleGeneration = errors.New("permission cache generation changed")

func (c *RedisPermissionCache) entryKey(tenantID, userID string) string {
	return c.prefix + "grants:" + url.QueryEscape(tenantID) + ":" + url.QueryEscape(userID)
}

func (c *RedisPermissionCache) indexKey(tenantID string) string {
	return c.prefix + "grants-index:" + url.QueryEscape(tenantID)
}

// Generation keys are outside the grants* pattern so Flush never resets
// them, and carry no TTL.
func (c *RedisPermissionCache) genKey(tenantID string) string {
	return c.prefix + "gen:grants:" + url.QueryEscape(tenantID)
}

func (c *RedisPermissionCache) epochKey() string {
	return c.prefix + "gen:epoch"
}

type multiGetter interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// generation packs the epoch into the high 32 bits and the tenant counter
// into the low 32 bits. Missing keys count as zero.
func (c *RedisPermissionCache) generation(ctx context.Context, r multiGetter, tenantID string) (uint64, error) {
	vals, err := r.MGet(ctx, c.epochKey(), c.genKey(tenantID)).Result()
	if err != nil {
		return 0, err
	}
	var parts [2]uint64
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("generation key: %w", err)
		}
		parts[i] = n
	}
	return parts[0]<<32 | parts[1]&0xffffffff, nil
}

func (c *RedisPermissionCache) Get(ctx context.Context, tenantID, userID string) (*UserGrants, bool) {
	raw, err := c.client.Get(ctx, c.entryKey(tenantID, userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.backendError(ctx, err, "read")
		}
		RecordCacheLookup("redis", false)
		return nil, false
	}

	var g UserGrants
	if err := json.Unmarshal(raw, &g); err != nil {
		c.backendError(ctx, err, "decode")
		RecordCacheLookup("redis", false)
		return nil, false
	}
	RecordCacheLookup("redis", true)
	return &g, true
}

func (c *RedisPermissionCache) Generation(ctx context.Context, tenantID string) (uint64, bool) {
	gen, err := c.generation(ctx, c.client, tenantID)
	if err != nil {
		c.backendError(ctx, err, "read")
		return 0, false
	}
	return gen, true
}

func (c *RedisPermissionCache) Set(ctx context.Context, tenantID, userID string, gen uint64, g *UserGrants) {
	raw, err := json.Marshal(g)
	if err != nil {
		c.backendError(ctx, err, "encode")
		return
	}

	key := c.entryKey(tenantID, userID)
	index := c.indexKey(tenantID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := c.generation(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, c.ttl)
			pipe.SAdd(ctx, index, key)
			pipe.Expire(ctx, index, c.ttl)
			return nil
		})
		return err
	}, c.epochKey(), c.genKey(tenantID))

	switch {
	case err == nil:
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		AuthzCacheStaleWritesTotal.Inc()
	default:
		c.backendError(ctx, err, "write")
	}
}

func (c *RedisPermissionCache) InvalidateUser(ctx context.Context, tenantID, userID string) {
	key := c.entryKey(tenantID, userID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, c.indexKey(tenantID), key)
		pipe.Incr(ctx, c.genKey(tenantID))
		return nil
	})
	if err != nil {
		c.backendError(ctx, err, "invalidate")
	}
	RecordCacheInvalidation("user")
}

// InvalidateTenant bumps the generation before reading the index, so an
// entry either is in the index by then or its Set fails.
func (c *RedisPermissionCache) InvalidateTenant(ctx context.Context, tenantID string) {
	if err := c.client.Incr(ctx, c.genKey(tenantID)).Err(); err != nil {
		c.backendError(ctx, err, "invalidate")
		return
	}
	index := c.indexKey(tenantID)
	keys, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		c.backendError(ctx, err, "invalidate")
		return
	}
	if err := c.client.Del(ctx, append(keys, index)...).Err(); err != nil {
		c.backendError(ctx, err, "invalidate")
	}
	RecordCacheInvalidation("tenant")
}

// Flush deletes every grants entry and tenant index under the prefix.
// Unlike the PermissionCache methods it reports backend errors.
func (c *RedisPermissionCache) Flush(ctx context.Context) error {
	// Advance the epoch first so writes resolved before the flush are dropped.
	if err := c.client.Incr(ctx, c.epochKey()).Err(); err != nil {
		return fmt.Errorf("flush permission cache: %w", err)
	}

	iter := c.client.Scan(ctx, 0, c.prefix+"grants*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("flush permission cache: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("flush permission cache: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("flush permission cache: %w", err)
		}
	}
	RecordCacheInvalidation("all")
	return nil
}

func (c *RedisPermissionCache) backendError(ctx context.Context, err error, op string) {
	AuthzCacheErrorsTotal.Inc()
	logging.Ctx(ctx).Warn().Err(err).Str("operation", op).Msg("Permission cache unavailable, using catalog")
}
