// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package authz

import (
	"context"
	"errors"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/tomtom215/tenantguard/internal/models"
)

func TestHasPermission(t *testing.T) {
	r := NewRbacResolver(setupCatalog(t))
	ctx := context.Background()

	tests := []struct {
		name     string
		tenant   string
		user     string
		resource string
		action   string
		want     bool
	}{
		{"granted via role", "tenant-a", "u-1", "orders", "read", true},
		{"not in role", "tenant-a", "u-1", "orders", "write", false},
		{"second role", "tenant-a", "u-2", "orders", "write", true},
		{"no user roles", "tenant-a", "nobody", "orders", "read", false},
		{"role without permissions", "tenant-a", "u-3", "orders", "read", false},
		{"other tenant's grant", "tenant-a", "u-9", "orders", "read", false},
		{"own tenant", "tenant-b", "u-9", "orders", "read", true},
		{"unknown tenant", "tenant-z", "u-1", "orders", "read", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.HasPermission(ctx, tt.tenant, tt.user, tt.resource, tt.action)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("HasPermission = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasPermissionSkipsUnknownRoles(t *testing.T) {
	s := setupCatalog(t)
	_ = s.AssignRole(models.UserRole{TenantID: "tenant-a", UserID: "u-4", RoleID: "r-ghost"})

	got, err := NewRbacResolver(s).HasPermission(context.Background(), "tenant-a", "u-4", "orders", "read")
	if err != nil || got {
		t.Errorf("HasPermission = %v, %v; want false, nil", got, err)
	}
}

func TestGetUserPermissionsDedupedAndSorted(t *testing.T) {
	s := setupCatalog(t)
	// Both of u-2's roles now carry orders:read.
	_ = s.GrantPermission("tenant-a", "r-editor", "p-orders-read")

	perms, err := NewRbacResolver(s).GetUserPermissions(context.Background(), "tenant-a", "u-2")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, p := range perms {
		got = append(got, p.Identifier())
	}
	want := []string{"docs:read", "orders:read", "orders:write"}
	if !slices.Equal(got, want) {
		t.Errorf("permissions = %v, want %v", got, want)
	}
}

func TestResolveGrants(t *testing.T) {
	roles, perms, err := NewRbacResolver(setupCatalog(t)).ResolveGrants(context.Background(), "tenant-a", "u-2")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(roles, []string{"EDITOR", "VIEWER"}) {
		t.Errorf("roles = %v", roles)
	}
	if !slices.Equal(perms, []string{"docs:read", "orders:read", "orders:write"}) {
		t.Errorf("permissions = %v", perms)
	}

	roles, perms, err = NewRbacResolver(setupCatalog(t)).ResolveGrants(context.Background(), "tenant-a", "nobody")
	if err != nil || len(roles) != 0 || len(perms) != 0 {
		t.Errorf("nobody = %v %v %v", roles, perms, err)
	}
}

func TestBatchHasPermission(t *testing.T) {
	got, err := NewRbacResolver(setupCatalog(t)).BatchHasPermission(context.Background(), "tenant-a", "u-1",
		[]string{"orders:read", "admin:docs:read", "orders:write", "garbage", ""})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"orders:read":     true,
		"admin:docs:read": true,
		"orders:write":    false,
		"garbage":         false,
		"":                false,
	}
	if !maps.Equal(got, want) {
		t.Errorf("batch = %v, want %v", got, want)
	}
}

func TestRbacStoreFailure(t *testing.T) {
	fs := &faultyStore{MemoryStore: setupCatalog(t)}
	fs.rolesDown.Store(true)

	_, err := NewRbacResolver(fs).HasPermission(context.Background(), "tenant-a", "u-1", "orders", "read")
	if !errors.Is(err, ErrRbacLookup) || !errors.Is(err, errStoreDown) {
		t.Fatalf("err = %v, want ErrRbacLookup wrapping the cause", err)
	}
}

func TestRbacCacheServesRepeatLookups(t *testing.T) {
	fs := &faultyStore{MemoryStore: setupCatalog(t)}
	r := NewRbacResolver(fs, WithPermissionCache(NewMemoryPermissionCache(time.Minute)))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, err := r.HasPermission(ctx, "tenant-a", "u-1", "orders", "read"); !ok || err != nil {
			t.Fatalf("HasPermission = %v, %v", ok, err)
		}
	}
	if hits := fs.userRoleHits.Load(); hits != 1 {
		t.Errorf("store read %d times, want 1", hits)
	}
}

func TestRbacCacheInvalidatedByCatalogChanges(t *testing.T) {
	s := setupCatalog(t)
	r := NewRbacResolver(s, WithPermissionCache(NewMemoryPermissionCache(time.Hour)))
	ctx := context.Background()

	check := func(user, resource, action string, want bool) {
		t.Helper()
		got, err := r.HasPermission(ctx, "tenant-a", user, resource, action)
		if err != nil || got != want {
			t.Fatalf("HasPermission(%s, %s:%s) = %v, %v; want %v", user, resource, action, got, err, want)
		}
	}

	// Warm the cache.
	check("u-1", "reports", "export", false)

	// Role mutation: tenant-wide invalidation.
	if err := s.GrantPermission("tenant-a", "r-viewer", "p-reports-export"); err != nil {
		t.Fatal(err)
	}
	check("u-1", "reports", "export", true)

	// Assignment mutation: user-level invalidation.
	s.UnassignRole(models.UserRole{TenantID: "tenant-a", UserID: "u-1", RoleID: "r-viewer"})
	check("u-1", "orders", "read", false)

	// Permission deletion: tenant-wide invalidation.
	check("u-2", "orders", "write", true)
	s.DeletePermission("tenant-a", "p-orders-write")
	check("u-2", "orders", "write", false)
}
