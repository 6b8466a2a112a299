// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/tenantguard/internal/api"
	"github.com/tomtom215/tenantguard/internal/catalog"
	"github.com/tomtom215/tenantguard/internal/config"
	"github.com/tomtom215/tenantguard/internal/logging"
)

// errBreakerOpen fails readiness while the catalog breaker rejects calls.
var errBreakerOpen = errors.New("catalog circuit breaker is open")

// catalogHandle is the selected catalog backend. Store is what the engine
// reads from; the other fields are set only for the backend in use.
type catalogHandle struct {
	catalog.Store

	memory   *catalog.MemoryStore
	postgres *catalog.PostgresStore
	breaker  *catalog.BreakerStore
}

// openCatalog builds the catalog named by CATALOG_BACKEND. The memory
// backend is filled from the JSON seed first, then from the Casbin policy,
// so Casbin rows can reference permissions defined in the seed. The
// postgres backend gets its schema applied and, when enabled, a circuit
// breaker in front of it.
func openCatalog(ctx context.Context, cfg *config.Config) (*catalogHandle, error) {
	h := &catalogHandle{}

	switch cfg.Catalog.Backend {
	case "postgres":
		pg, err := catalog.OpenPostgresStore(ctx, cfg.Catalog.PostgresDSN, cfg.Catalog.PostgresMaxConns)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		h.postgres = pg
		h.Store = pg

		if cfg.Catalog.Breaker.Enabled {
			h.breaker = catalog.NewBreakerStore(pg, "postgres", cfg.Catalog.Breaker)
			h.Store = h.breaker
		}

	default:
		mem := catalog.NewMemoryStore()
		if path := cfg.Catalog.SeedPath; path != "" {
			if err := catalog.LoadSeedFile(path, mem, cfg.Security.BcryptCost); err != nil {
				return nil, fmt.Errorf("failed to load catalog seed %s: %w", path, err)
			}
		}
		if cfg.Catalog.CasbinPolicyPath != "" {
			if _, err := catalog.ImportCasbinPolicy(mem, cfg.Catalog.CasbinModelPath, cfg.Catalog.CasbinPolicyPath); err != nil {
				return nil, fmt.Errorf("failed to import casbin policy: %w", err)
			}
		}
		if len(mem.Tenants()) == 0 {
			logging.Warn().Msg("Catalog is empty, every login will fail")
		}
		h.memory = mem
		h.Store = mem
	}

	return h, nil
}

// addReadinessChecks registers the checks that apply to the backend in use.
func (h *catalogHandle) addReadinessChecks(handler *api.Handler) {
	if h.postgres != nil {
		handler.AddReadinessCheck("catalog", h.postgres.Ping)
	}
	if h.breaker != nil {
		handler.AddReadinessCheck("catalog_breaker", func(context.Context) error {
			if h.breaker.State() == "open" {
				return errBreakerOpen
			}
			return nil
		})
	}
}

// Close releases the postgres pool. The memory backend holds nothing.
func (h *catalogHandle) Close() {
	if h.postgres != nil {
		h.postgres.Close()
	}
}
