// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package config

import (
	"fmt"
	"strings"

	"github.com/tomtom215/tenantguard/internal/logging"
)

// MinJWTSecretLength is the shortest accepted HS256 key.
const MinJWTSecretLength = 32

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateJWT(); err != nil {
		return err
	}
	if err := c.validateAuthz(); err != nil {
		return err
	}
	if err := c.validateBackends(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !c.Server.RateLimitDisabled {
		if c.Server.RateLimitReqs <= 0 || c.Server.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_REQS and RATE_LIMIT_WINDOW must be positive")
		}
	}
	return nil
}

func (c *Config) validateJWT() error {
	jwt := c.Security.JWT
	if len(jwt.Secret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", MinJWTSecretLength)
	}
	if jwt.Issuer == "" {
		return fmt.Errorf("JWT_ISSUER must not be empty")
	}
	if jwt.AccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be positive, got %v", jwt.AccessTTL)
	}
	if jwt.RefreshTTL < jwt.AccessTTL {
		return fmt.Errorf("JWT_REFRESH_TTL (%v) must not be shorter than JWT_ACCESS_TTL (%v)", jwt.RefreshTTL, jwt.AccessTTL)
	}
	if jwt.Leeway < 0 {
		return fmt.Errorf("JWT_LEEWAY must not be negative")
	}
	return nil
}

func (c *Config) validateAuthz() error {
	if !strings.HasPrefix(c.Authz.ProtectedPrefix, "/") {
		return fmt.Errorf("AUTHZ_PROTECTED_PREFIX must start with '/', got %q", c.Authz.ProtectedPrefix)
	}
	switch c.Authz.DefaultPolicy {
	case PolicyAllow, PolicyDeny:
	default:
		return fmt.Errorf("AUTHZ_DEFAULT_POLICY must be %q or %q, got %q", PolicyAllow, PolicyDeny, c.Authz.DefaultPolicy)
	}
	return nil
}

func (c *Config) validateBackends() error {
	switch c.Cache.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("CACHE_BACKEND must be none, memory or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.Backend != "none" && c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive when caching is enabled")
	}

	switch c.Blacklist.Backend {
	case "memory", "badger", "redis":
	default:
		return fmt.Errorf("BLACKLIST_BACKEND must be memory, badger or redis, got %q", c.Blacklist.Backend)
	}

	if (c.Cache.Backend == "redis" || c.Blacklist.Backend == "redis") && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required when a redis backend is selected")
	}
	return nil
}

func (c *Config) validateCatalog() error {
	switch c.Catalog.Backend {
	case "memory":
		if c.Catalog.CasbinModelPath != "" && c.Catalog.CasbinPolicyPath == "" {
			return fmt.Errorf("CASBIN_POLICY_PATH is required when CASBIN_MODEL_PATH is set")
		}
	case "postgres":
		if c.Catalog.PostgresDSN == "" {
			return fmt.Errorf("DATABASE_URL is required when CATALOG_BACKEND=postgres")
		}
		if c.Catalog.PostgresMaxConns <= 0 {
			return fmt.Errorf("DATABASE_MAX_CONNS must be positive")
		}
	default:
		return fmt.Errorf("CATALOG_BACKEND must be memory or postgres, got %q", c.Catalog.Backend)
	}

	b := c.Catalog.Breaker
	if b.Enabled && (b.ConsecutiveFailures == 0 || b.Timeout <= 0) {
		return fmt.Errorf("catalog breaker needs positive failure threshold and timeout")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
