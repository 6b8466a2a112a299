// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package auth

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBlacklist shares revocations across instances. Keys expire with the token.
type RedisBlacklist struct {
	client redis.UniversalClient
	prefix string
	closed atomic.Bool
}

// NewRedisBlacklist wraps client. The caller owns the client.
func NewRedisBlacklist(client redis.UniversalClient, prefix string) *RedisBlacklist {
	if prefix == "" {
		prefix = "revoked:"
	}
	return &RedisBlacklist{client: client, prefix: prefix}
}

func (b *RedisBlacklist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if b.closed.Load() {
		return ErrBlacklistClosed
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, b.prefix+tokenID, expiresAt.Unix(), ttl).Err(); err != nil {
		BlacklistOperationsTotal.WithLabelValues("redis", "revoke", "failure").Inc()
		return fmt.Errorf("failed to store revocation: %w", err)
	}
	BlacklistOperationsTotal.WithLabelValues("redis", "revoke", "success").Inc()
	return nil
}

func (b *RedisBlacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if b.closed.Load() {
		return false, ErrBlacklistClosed
	}
	n, err := b.client.Exists(ctx, b.prefix+tokenID).Result()
	if err != nil {
		BlacklistOperationsTotal.WithLabelValues("redis", "check", "failure").Inc()
		return false, fmt.Errorf("failed to read revocation: %w", err)
	}
	if n > 0 {
		BlacklistOperationsTotal.WithLabelValues("redis", "check", "revoked").Inc()
	}
	return n > 0, nil
}

func (b *RedisBlacklist) Close() error {
	b.closed.Store(true)
	return nil
}
