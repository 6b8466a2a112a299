// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBlacklistClosed is returned after Close.
var ErrBlacklistClosed = errors.New("token blacklist is closed")

// Blacklist holds revoked token ids until the token would have expired anyway.
//
// A well-signed, unexpired token is not necessarily valid: the session
// middleware consults the blacklist before trusting it.
type Blacklist interface {
	// Revoke marks tokenID revoked until expiresAt. Revoking an already
	// expired token is a no-op.
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error

	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	Close() error
}

// MemoryBlacklist is a process-local Blacklist. Entries are lost on restart,
// which is acceptable for single-instance deployments with short access TTLs.
type MemoryBlacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	closed  bool
	now     func() time.Time
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (b *MemoryBlacklist) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		BlacklistOperationsTotal.WithLabelValues("memory", "revoke", "failure").Inc()
		return ErrBlacklistClosed
	}
	if !expiresAt.After(b.now()) {
		return nil
	}

	b.entries[tokenID] = expiresAt
	BlacklistOperationsTotal.WithLabelValues("memory", "revoke", "success").Inc()
	BlacklistSize.WithLabelValues("memory").Set(float64(len(b.entries)))
	return nil
}

func (b *MemoryBlacklist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, ErrBlacklistClosed
	}
	until, ok := b.entries[tokenID]
	if !ok || !b.now().Before(until) {
		return false, nil
	}
	BlacklistOperationsTotal.WithLabelValues("memory", "check", "revoked").Inc()
	return true, nil
}

// CleanupExpired drops entries whose tokens have expired and returns how many were removed.
func (b *MemoryBlacklist) CleanupExpired(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrBlacklistClosed
	}

	now := b.now()
	count := 0
	for id, until := range b.entries {
		if !now.Before(until) {
			delete(b.entries, id)
			count++
		}
	}
	BlacklistOperationsTotal.WithLabelValues("memory", "cleanup", "success").Inc()
	BlacklistSize.WithLabelValues("memory").Set(float64(len(b.entries)))
	return count, nil
}

// Size returns the number of entries, expired or not.
func (b *MemoryBlacklist) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

func (b *MemoryBlacklist) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.entries = nil
	return nil
}
