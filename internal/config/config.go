// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

// Package config loads tenantguard configuration.
//
// Sources are layered with koanf, later layers overriding earlier ones:
//
//  1. Built-in defaults (defaultConfig)
//  2. YAML file (CONFIG_PATH or one of DefaultConfigPaths)
//  3. Environment variables (explicit mapping in envTransformFunc)
//
// The result is validated before it is returned.
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	Authz     AuthzConfig     `koanf:"authz"`
	Cache     CacheConfig     `koanf:"cache"`
	Blacklist BlacklistConfig `koanf:"blacklist"`
	Redis     RedisConfig     `koanf:"redis"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Audit     AuditConfig     `koanf:"audit"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	CORSOrigins []string `koanf:"cors_origins"`

	// Global per-IP limit
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// Separate, tighter limit for the login endpoint
	LoginRateLimitReqs int `koanf:"login_rate_limit_reqs"`
}

// SecurityConfig holds authentication settings.
type SecurityConfig struct {
	JWT JWTConfig `koanf:"jwt"`

	// RequireAuth rejects requests without a valid bearer token with 401.
	// When false, anonymous requests continue without a session.
	RequireAuth bool `koanf:"require_auth"`

	// TenantHeader, when present on a request, must equal the token tenant.
	TenantHeader string `koanf:"tenant_header"`

	// BcryptCost is used when hashing passwords for seed data.
	BcryptCost int `koanf:"bcrypt_cost"`
}

// JWTConfig configures the token codec.
type JWTConfig struct {
	// Secret is the HS256 signing key, at least 32 bytes.
	Secret     string        `koanf:"secret"`
	Issuer     string        `koanf:"issuer"`
	AccessTTL  time.Duration `koanf:"access_ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl"`
	// Leeway tolerates clock skew when checking exp.
	Leeway time.Duration `koanf:"leeway"`
}

// Default policies for admin paths no rule maps.
const (
	PolicyAllow = "allow"
	PolicyDeny  = "deny"
)

// AuthzConfig configures the decision engine.
type AuthzConfig struct {
	// ProtectedPrefix is the path prefix under which rules are enforced.
	ProtectedPrefix string `koanf:"protected_prefix"`

	// DefaultPolicy applies when no rule matches a protected path.
	DefaultPolicy string `koanf:"default_policy"`
}

// DefaultAllow reports whether unmapped protected paths are allowed.
func (a AuthzConfig) DefaultAllow() bool {
	return a.DefaultPolicy != PolicyDeny
}

// CacheConfig configures the RBAC permission cache.
type CacheConfig struct {
	// Backend is "none", "memory" or "redis".
	Backend         string        `koanf:"backend"`
	TTL             time.Duration `koanf:"ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	KeyPrefix       string        `koanf:"key_prefix"`
}

// BlacklistConfig configures revoked-token storage.
type BlacklistConfig struct {
	// Backend is "memory", "badger" or "redis".
	Backend string `koanf:"backend"`

	// Path is the Badger data directory. Empty runs Badger in memory.
	Path string `koanf:"path"`

	KeyPrefix       string        `koanf:"key_prefix"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// RedisConfig is shared by the Redis cache and blacklist backends.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// CatalogConfig selects where roles, permissions, rules and policies come from.
type CatalogConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `koanf:"backend"`

	// SeedPath is a JSON catalog loaded into the memory backend.
	SeedPath string `koanf:"seed_path"`

	// CasbinModelPath is optional; the built-in RBAC-with-domains model is used when empty.
	CasbinModelPath  string `koanf:"casbin_model_path"`
	CasbinPolicyPath string `koanf:"casbin_policy_path"`

	PostgresDSN      string `koanf:"postgres_dsn"`
	PostgresMaxConns int32  `koanf:"postgres_max_conns"`

	Breaker BreakerConfig `koanf:"breaker"`
}

// BreakerConfig configures the circuit breaker around the catalog store.
type BreakerConfig struct {
	Enabled bool `koanf:"enabled"`

	// MaxRequests allowed through while half-open.
	MaxRequests uint32 `koanf:"max_requests"`

	// Interval clears failure counts while closed.
	Interval time.Duration `koanf:"interval"`

	// Timeout is how long the breaker stays open.
	Timeout time.Duration `koanf:"timeout"`

	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32 `koanf:"consecutive_failures"`
}

// AuditConfig configures the async decision audit log.
type AuditConfig struct {
	Enabled    bool `koanf:"enabled"`
	BufferSize int  `koanf:"buffer_size"`
	// LogAllowed also records Allow decisions, not just denials.
	LogAllowed bool `koanf:"log_allowed"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
