// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tenantguard/config.yaml",
	"/etc/tenantguard/config.yml",
}

// ConfigPathEnvVar names an explicit config file.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       15 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			CORSOrigins:        []string{},
			RateLimitReqs:      300,
			RateLimitWindow:    time.Minute,
			LoginRateLimitReqs: 10,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer:     "tenantguard",
				AccessTTL:  15 * time.Minute,
				RefreshTTL: 7 * 24 * time.Hour,
			},
			RequireAuth:  true,
			TenantHeader: "X-Tenant-ID",
			BcryptCost:   12,
		},
		Authz: AuthzConfig{
			ProtectedPrefix: "/api/v1/admin/",
			DefaultPolicy:   PolicyAllow,
		},
		Cache: CacheConfig{
			Backend:         "memory",
			TTL:             5 * time.Minute,
			CleanupInterval: time.Minute,
			KeyPrefix:       "tenantguard:perm:",
		},
		Blacklist: BlacklistConfig{
			Backend:         "memory",
			KeyPrefix:       "tenantguard:revoked:",
			CleanupInterval: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Catalog: CatalogConfig{
			Backend:          "memory",
			PostgresMaxConns: 10,
			Breaker: BreakerConfig{
				Enabled:             true,
				MaxRequests:         1,
				Interval:            time.Minute,
				Timeout:             30 * time.Second,
				ConsecutiveFailures: 5,
			},
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from defaults, the discovered YAML file and the environment.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit YAML path. An empty path skips the file layer.
func LoadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths accept comma-separated strings from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings lists every environment variable tenantguard reads.
// Anything not listed is ignored so unrelated variables never leak in.
var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"shutdown_timeout":      "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",
	"rate_limit_reqs":       "server.rate_limit_reqs",
	"rate_limit_window":     "server.rate_limit_window",
	"disable_rate_limit":    "server.rate_limit_disabled",
	"login_rate_limit_reqs": "server.login_rate_limit_reqs",

	"jwt_secret":      "security.jwt.secret",
	"jwt_issuer":      "security.jwt.issuer",
	"jwt_access_ttl":  "security.jwt.access_ttl",
	"jwt_refresh_ttl": "security.jwt.refresh_ttl",
	"jwt_leeway":      "security.jwt.leeway",
	"require_auth":    "security.require_auth",
	"tenant_header":   "security.tenant_header",
	"bcrypt_cost":     "security.bcrypt_cost",

	"authz_protected_prefix": "authz.protected_prefix",
	"authz_default_policy":   "authz.default_policy",

	"cache_backend":          "cache.backend",
	"cache_ttl":              "cache.ttl",
	"cache_cleanup_interval": "cache.cleanup_interval",
	"cache_key_prefix":       "cache.key_prefix",

	"blacklist_backend":          "blacklist.backend",
	"blacklist_path":             "blacklist.path",
	"blacklist_key_prefix":       "blacklist.key_prefix",
	"blacklist_cleanup_interval": "blacklist.cleanup_interval",

	"redis_addr":     "redis.addr",
	"redis_password": "redis.password",
	"redis_db":       "redis.db",

	"catalog_backend":           "catalog.backend",
	"catalog_seed_path":         "catalog.seed_path",
	"casbin_model_path":         "catalog.casbin_model_path",
	"casbin_policy_path":        "catalog.casbin_policy_path",
	"database_url":              "catalog.postgres_dsn",
	"database_max_conns":        "catalog.postgres_max_conns",
	"catalog_breaker_enabled":   "catalog.breaker.enabled",
	"catalog_breaker_timeout":   "catalog.breaker.timeout",
	"catalog_breaker_failures":  "catalog.breaker.consecutive_failures",
	"catalog_breaker_half_open": "catalog.breaker.max_requests",
	"catalog_breaker_interval":  "catalog.breaker.interval",

	"audit_enabled":     "audit.enabled",
	"audit_buffer_size": "audit.buffer_size",
	"audit_log_allowed": "audit.log_allowed",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
