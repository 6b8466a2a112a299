// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tenantguard/internal/logging"
)

// revokedEntry is the value stored per revoked token.
type revokedEntry struct {
	RevokedAt time.Time `json:"revoked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BadgerBlacklist persists revocations in Badger so they survive restarts.
// Entries carry a Badger TTL equal to the token's remaining lifetime, so
// Badger itself garbage-collects them.
type BadgerBlacklist struct {
	db     *badger.DB
	prefix []byte
	ownsDB bool

	mu     sync.RWMutex
	closed bool
}

// NewBadgerBlacklist uses an existing database. Close does not close db.
func NewBadgerBlacklist(db *badger.DB, prefix string) *BadgerBlacklist {
	if prefix == "" {
		prefix = "revoked:"
	}
	return &BadgerBlacklist{db: db, prefix: []byte(prefix)}
}

// OpenBadgerBlacklist opens a database at path (in memory when path is empty)
// and closes it on Close.
func OpenBadgerBlacklist(path, prefix string) (*BadgerBlacklist, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger blacklist: %w", err)
	}
	b := NewBadgerBlacklist(db, prefix)
	b.ownsDB = true
	return b, nil
}

func (b *BadgerBlacklist) makeKey(tokenID string) []byte {
	key := make([]byte, 0, len(b.prefix)+len(tokenID))
	key = append(key, b.prefix...)
	return append(key, tokenID...)
}

func (b *BadgerBlacklist) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func (b *BadgerBlacklist) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	if b.isClosed() {
		BlacklistOperationsTotal.WithLabelValues("badger", "revoke", "failure").Inc()
		return ErrBlacklistClosed
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(revokedEntry{RevokedAt: time.Now(), ExpiresAt: expiresAt})
	if err != nil {
		return fmt.Errorf("failed to encode revocation: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(b.makeKey(tokenID), data).WithTTL(ttl))
	})
	if err != nil {
		BlacklistOperationsTotal.WithLabelValues("badger", "revoke", "failure").Inc()
		logging.Error().Err(err).Str("jti", logging.SanitizeToken(tokenID)).Msg("Failed to persist token revocation")
		return fmt.Errorf("failed to store revocation: %w", err)
	}

	BlacklistOperationsTotal.WithLabelValues("badger", "revoke", "success").Inc()
	return nil
}

func (b *BadgerBlacklist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	if b.isClosed() {
		return false, ErrBlacklistClosed
	}

	var entry revokedEntry
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.makeKey(tokenID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	case err != nil:
		BlacklistOperationsTotal.WithLabelValues("badger", "check", "failure").Inc()
		return false, fmt.Errorf("failed to read revocation: %w", err)
	}

	if !time.Now().Before(entry.ExpiresAt) {
		return false, nil
	}
	BlacklistOperationsTotal.WithLabelValues("badger", "check", "revoked").Inc()
	return true, nil
}

// gcDiscardRatio is the value log discard ratio passed to RunValueLogGC.
const gcDiscardRatio = 0.5

// CleanupExpired reclaims value log space left by TTL-expired entries. It
// returns the number of log files rewritten. In-memory databases have no
// value log and report zero.
func (b *BadgerBlacklist) CleanupExpired(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrBlacklistClosed
	}

	rewritten := 0
	for ctx.Err() == nil {
		err := b.db.RunValueLogGC(gcDiscardRatio)
		switch {
		case err == nil:
			rewritten++
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
			return rewritten, nil
		default:
			return rewritten, fmt.Errorf("badger value log gc: %w", err)
		}
	}
	return rewritten, ctx.Err()
}

func (b *BadgerBlacklist) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.ownsDB {
		return b.db.Close()
	}
	return nil
}
