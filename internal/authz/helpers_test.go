// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package authz

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/tenantguard/internal/auth"
	"github.com/tomtom215/tenantguard/internal/catalog"
	"github.com/tomtom215/tenantguard/internal/config"
	"github.com/tomtom215/tenantguard/internal/models"
)

// ===== Test Helpers =====

var errStoreDown = errors.New("store down")

// setupCatalog builds two tenants:
//
//	tenant-a
//	  VIEWER  (r-viewer) orders:read, docs:read       -> u-1, u-2
//	  EDITOR  (r-editor) orders:write [clearance>=3]  -> u-2
//	  EMPTY   (r-empty)                               -> u-3
//	  rules   GET  /api/v1/admin/orders     admin:orders:read   prio 10
//	          POST /api/v1/admin/orders     admin:orders:write  prio 10
//	          *    /api/v1/admin/docs/**    docs:read           prio 1
//	tenant-b
//	  VIEWER  orders:read -> u-9
func setupCatalog(t *testing.T) *catalog.MemoryStore {
	t.Helper()
	s := catalog.NewMemoryStore()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	must(s.PutPermission(models.Permission{ID: "p-orders-read", TenantID: "tenant-a", Resource: "orders", Action: "read"}))
	must(s.PutPermission(models.Permission{
		ID: "p-orders-write", TenantID: "tenant-a", Resource: "orders", Action: "write", Type: models.PermissionData,
		AbacConditions: map[string]any{"clearance": map[string]any{"$gte": float64(3)}},
	}))
	must(s.PutPermission(models.Permission{ID: "p-docs-read", TenantID: "tenant-a", Resource: "docs", Action: "read"}))
	must(s.PutPermission(models.Permission{ID: "p-reports-export", TenantID: "tenant-a", Resource: "reports", Action: "export"}))

	must(s.PutRole(models.Role{ID: "r-viewer", TenantID: "tenant-a", Name: "VIEWER", PermissionIDs: []string{"p-orders-read", "p-docs-read"}}))
	must(s.PutRole(models.Role{ID: "r-editor", TenantID: "tenant-a", Name: "EDITOR", PermissionIDs: []string{"p-orders-write"}}))
	must(s.PutRole(models.Role{ID: "r-empty", TenantID: "tenant-a", Name: "EMPTY"}))

	must(s.AssignRole(models.UserRole{TenantID: "tenant-a", UserID: "u-1", RoleID: "r-viewer"}))
	must(s.AssignRole(models.UserRole{TenantID: "tenant-a", UserID: "u-2", RoleID: "r-viewer"}))
	must(s.AssignRole(models.UserRole{TenantID: "tenant-a", UserID: "u-2", RoleID: "r-editor"}))
	must(s.AssignRole(models.UserRole{TenantID: "tenant-a", UserID: "u-3", RoleID: "r-empty"}))

	must(s.PutRule(models.PermissionRule{
		ID: "x-orders-read", TenantID: "tenant-a", Pattern: "/api/v1/admin/orders", Methods: []string{"GET"},
		Permission: "admin:orders:read", Enabled: true, Priority: 10,
	}))
	must(s.PutRule(models.PermissionRule{
		ID: "x-orders-write", TenantID: "tenant-a", Pattern: "/api/v1/admin/orders", Methods: []string{"POST"},
		Permission: "admin:orders:write", Enabled: true, Priority: 10,
	}))
	must(s.PutRule(models.PermissionRule{
		ID: "x-docs", TenantID: "tenant-a", Pattern: "/api/v1/admin/docs/**",
		Permission: "docs:read", Enabled: true, Priority: 1,
	}))

	must(s.PutPermission(models.Permission{ID: "p-orders-read", TenantID: "tenant-b", Resource: "orders", Action: "read"}))
	must(s.PutRole(models.Role{ID: "r-viewer", TenantID: "tenant-b", Name: "VIEWER", PermissionIDs: []string{"p-orders-read"}}))
	must(s.AssignRole(models.UserRole{TenantID: "tenant-b", UserID: "u-9", RoleID: "r-viewer"}))
	return s
}

// faultyStore fails the reads selected by its flags.
type faultyStore struct {
	*catalog.MemoryStore
	rulesDown    atomic.Bool
	rolesDown    atomic.Bool
	policiesDown atomic.Bool
	permsDown    atomic.Bool
	userRoleHits atomic.Int64
}

func (s *faultyStore) Rules(ctx context.Context, tenantID string) ([]models.PermissionRule, error) {
	if s.rulesDown.Load() {
		return nil, errStoreDown
	}
	return s.MemoryStore.Rules(ctx, tenantID)
}

func (s *faultyStore) UserRoles(ctx context.Context, tenantID, userID string) ([]models.UserRole, error) {
	s.userRoleHits.Add(1)
	if s.rolesDown.Load() {
		return nil, errStoreDown
	}
	return s.MemoryStore.UserRoles(ctx, tenantID, userID)
}

func (s *faultyStore) Policies(ctx context.Context, tenantID, resource, action string) ([]models.AbacPolicy, error) {
	if s.policiesDown.Load() {
		return nil, errStoreDown
	}
	return s.MemoryStore.Policies(ctx, tenantID, resource, action)
}

func (s *faultyStore) PermissionByResourceAction(ctx context.Context, tenantID, resource, action string) (*models.Permission, error) {
	if s.permsDown.Load() {
		return nil, errStoreDown
	}
	return s.MemoryStore.PermissionByResourceAction(ctx, tenantID, resource, action)
}

func testAuthzConfig() config.AuthzConfig {
	return config.AuthzConfig{ProtectedPrefix: "/api/v1/admin/", DefaultPolicy: config.PolicyAllow}
}

// setupEngine wires an engine over store with a fixed ABAC clock of 12:00 UTC.
func setupEngine(t *testing.T, store catalog.Store, cfg config.AuthzConfig) *DecisionEngine {
	t.Helper()
	noon := func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	return NewDecisionEngine(
		NewRuleMatcher(store),
		NewRbacResolver(store),
		NewAbacEvaluator(store, WithAbacClock(noon)),
		store,
		cfg,
	)
}

// sessionCtx returns a context carrying an access-token session.
func sessionCtx(tenantID, userID string, roles []string, attrs map[string]string) context.Context {
	claims := &auth.Claims{
		TenantID:       tenantID,
		TokenType:      models.TokenAccess,
		Roles:          roles,
		AbacAttributes: attrs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        "jti-" + userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	return auth.WithSession(context.Background(), auth.NewSessionContext(claims))
}
