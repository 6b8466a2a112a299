// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = testSecret
	return cfg
}

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Authz.ProtectedPrefix != "/api/v1/admin/" {
		t.Errorf("ProtectedPrefix = %q, want /api/v1/admin/", cfg.Authz.ProtectedPrefix)
	}
	if !cfg.Authz.DefaultAllow() {
		t.Error("default policy for unmapped admin paths should be allow")
	}
	if cfg.Security.JWT.AccessTTL != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want 15m", cfg.Security.JWT.AccessTTL)
	}
	if !cfg.Security.RequireAuth {
		t.Error("RequireAuth should default to true")
	}
	if cfg.Security.TenantHeader != "X-Tenant-ID" {
		t.Errorf("TenantHeader = %q", cfg.Security.TenantHeader)
	}

	// Defaults alone lack a secret.
	if err := cfg.Validate(); err == nil {
		t.Error("defaults without JWT secret should fail validation")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("AUTHZ_DEFAULT_POLICY", "deny")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("REQUIRE_AUTH", "false")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Authz.DefaultAllow() {
		t.Error("AUTHZ_DEFAULT_POLICY=deny not applied")
	}
	if cfg.Security.JWT.AccessTTL != 5*time.Minute {
		t.Errorf("AccessTTL = %v, want 5m", cfg.Security.JWT.AccessTTL)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Security.RequireAuth {
		t.Error("REQUIRE_AUTH=false not applied")
	}
}

func TestLoadFromFileThenEnv(t *testing.T) {
	path := writeYAML(t, `
security:
  jwt:
    secret: "`+testSecret+`"
    issuer: file-issuer
authz:
  protected_prefix: /internal/
cache:
  backend: none
`)
	t.Setenv("JWT_ISSUER", "env-issuer")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Security.JWT.Issuer != "env-issuer" {
		t.Errorf("Issuer = %q, env should override file", cfg.Security.JWT.Issuer)
	}
	if cfg.Authz.ProtectedPrefix != "/internal/" {
		t.Errorf("ProtectedPrefix = %q, want /internal/", cfg.Authz.ProtectedPrefix)
	}
	if cfg.Cache.Backend != "none" {
		t.Errorf("Cache.Backend = %q, want none", cfg.Cache.Backend)
	}
	// Untouched defaults survive the file layer.
	if cfg.Security.JWT.RefreshTTL != 7*24*time.Hour {
		t.Errorf("RefreshTTL = %v, want 168h", cfg.Security.JWT.RefreshTTL)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"short secret", func(c *Config) { c.Security.JWT.Secret = "short" }, "JWT_SECRET"},
		{"empty issuer", func(c *Config) { c.Security.JWT.Issuer = "" }, "JWT_ISSUER"},
		{"refresh shorter than access", func(c *Config) { c.Security.JWT.RefreshTTL = time.Minute }, "JWT_REFRESH_TTL"},
		{"bad prefix", func(c *Config) { c.Authz.ProtectedPrefix = "api/" }, "AUTHZ_PROTECTED_PREFIX"},
		{"bad default policy", func(c *Config) { c.Authz.DefaultPolicy = "maybe" }, "AUTHZ_DEFAULT_POLICY"},
		{"bad cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "CACHE_BACKEND"},
		{"bad blacklist backend", func(c *Config) { c.Blacklist.Backend = "file" }, "BLACKLIST_BACKEND"},
		{"redis without addr", func(c *Config) { c.Blacklist.Backend = "redis"; c.Redis.Addr = "" }, "REDIS_ADDR"},
		{"postgres without dsn", func(c *Config) { c.Catalog.Backend = "postgres" }, "DATABASE_URL"},
		{"model without policy", func(c *Config) { c.Catalog.CasbinModelPath = "model.conf" }, "CASBIN_POLICY_PATH"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %s", err, tt.wantErr)
			}
		})
	}
}

func TestFindConfigFileHonoursEnv(t *testing.T) {
	path := writeYAML(t, "logging:\n  level: debug\n")
	t.Setenv(ConfigPathEnvVar, path)
	if got := findConfigFile(); got != path {
		t.Errorf("findConfigFile() = %q, want %q", got, path)
	}
}
