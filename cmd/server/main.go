// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

// Package main is the entry point for the Tenantguard server.
//
// Tenantguard authenticates users per tenant, issues JWT access and refresh
// tokens, and decides whether each request to the protected API prefix is
// allowed, using permission rules, role-based grants and attribute policies.
//
// # Startup Order
//
//  1. Configuration (Koanf v2: defaults, config.yaml, environment)
//  2. Logging and build info metrics
//  3. Redis client, when a redis cache or blacklist backend is selected
//  4. Catalog store: memory (JSON seed and/or Casbin policy) or PostgreSQL,
//     optionally behind a circuit breaker
//  5. Permission cache, token blacklist, decision engine and audit log
//  6. Token issuer, session middleware and chi router
//  7. Supervisor tree: janitor and catalog listener in the storage layer,
//     HTTP server in the api layer
//
// # Example Usage
//
// In-memory catalog from a seed file:
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export CATALOG_SEED_PATH=./catalog.json
//	./tenantguard
//
// PostgreSQL catalog with Redis-backed cache and revocation:
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export CATALOG_BACKEND=postgres
//	export DATABASE_URL=postgres://tenantguard@db/tenantguard
//	export CACHE_BACKEND=redis
//	export BLACKLIST_BACKEND=redis
//	export REDIS_ADDR=redis:6379
//	./tenantguard
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The supervisor stops the HTTP
// server (draining in-flight requests for SHUTDOWN_TIMEOUT), then
// the audit log is flushed and stores are closed.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/tenantguard/internal/api"
	"github.com/tomtom215/tenantguard/internal/auth"
	"github.com/tomtom215/tenantguard/internal/authz"
	"github.com/tomtom215/tenantguard/internal/config"
	"github.com/tomtom215/tenantguard/internal/logging"
	"github.com/tomtom215/tenantguard/internal/metrics"
	"github.com/tomtom215/tenantguard/internal/supervisor"
	"github.com/tomtom215/tenantguard/internal/supervisor/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	metrics.SetAppInfo(version, runtime.Version())

	logging.Info().
		Str("version", version).
		Str("catalog", cfg.Catalog.Backend).
		Str("cache", cfg.Cache.Backend).
		Str("blacklist", cfg.Blacklist.Backend).
		Str("default_policy", cfg.Authz.DefaultPolicy).
		Msg("Starting Tenantguard")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		logging.Error().Err(err).Msg("Tenantguard stopped with error")
		os.Exit(1)
	}
	logging.Info().Msg("Application stopped gracefully")
}

//nolint:gocyclo // sequential wiring of every component
func run(ctx context.Context, cfg *config.Config) error {
	redisClient, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing redis client")
			}
		}()
	}

	cat, err := openCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	cache := newPermissionCache(cfg.Cache, redisClient)

	blacklist, err := openBlacklist(cfg.Blacklist, redisClient)
	if err != nil {
		return err
	}
	defer func() {
		if err := blacklist.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing token blacklist")
		}
	}()

	var rbacOpts []authz.RbacOption
	if cache.PermissionCache != nil {
		rbacOpts = append(rbacOpts, authz.WithPermissionCache(cache.PermissionCache))
	}
	rbac := authz.NewRbacResolver(cat.Store, rbacOpts...)
	abac := authz.NewAbacEvaluator(cat.Store)
	matcher := authz.NewRuleMatcher(cat.Store)

	audit := authz.NewAuditLogger(cfg.Audit)
	// Deferred before the tree starts so it closes after the HTTP server stops.
	defer audit.Close()

	engine := authz.NewDecisionEngine(matcher, rbac, abac, cat.Store, cfg.Authz).WithAuditLogger(audit)

	codec, err := auth.NewTokenCodec(cfg.Security.JWT)
	if err != nil {
		return fmt.Errorf("failed to create token codec: %w", err)
	}
	issuer := auth.NewIssuer(cat.Store, rbac, codec, blacklist)
	sessions := auth.NewMiddleware(codec, blacklist, cfg.Security)

	handler := api.NewHandler(issuer, engine, audit, version)
	cat.addReadinessChecks(handler)
	if redisClient != nil {
		handler.AddReadinessCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	router := api.NewRouter(handler, sessions, engine, api.NewChiMiddlewareFromConfig(cfg.Server))
	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	treeConfig := supervisor.DefaultTreeConfig()
	treeConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout + 5*time.Second
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeConfig)
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	// Storage layer
	tree.AddStorageService(services.NewJanitorService(
		janitorInterval(cfg),
		janitorTasks(blacklist, cache)...,
	))
	if cat.postgres != nil {
		tree.AddStorageService(services.NewChangeListenerService(cat.postgres, cache.flush))
		logging.Info().Msg("Catalog change listener added to supervisor tree")
	}

	// API layer
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	logging.Info().Msg("Starting supervisor tree...")
	err = tree.Serve(ctx)

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	// Any error after a shutdown signal is the tree reporting its own termination.
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	return nil
}

// janitorInterval is the shorter of the two configured cleanup intervals.
func janitorInterval(cfg *config.Config) time.Duration {
	interval := cfg.Blacklist.CleanupInterval
	if c := cfg.Cache.CleanupInterval; c > 0 && (interval <= 0 || c < interval) {
		interval = c
	}
	return interval
}
