// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package catalog

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

const testCasbinPolicy = `p, VIEWER, acme, orders, read
p, ADMIN, acme, orders, write
g, ADMIN, VIEWER, acme
g, alice, ADMIN, acme
g, bob, VIEWER, acme
p, VIEWER, globex, invoices, read
g, carol, VIEWER, globex
`

func writePolicy(t *testing.T, policy string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.csv")
	if err := os.WriteFile(path, []byte(policy), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImportCasbinPolicy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	stats, err := ImportCasbinPolicy(store, "", writePolicy(t, testCasbinPolicy))
	if err != nil {
		t.Fatalf("ImportCasbinPolicy: %v", err)
	}
	if stats.Tenants != 2 || stats.Roles != 3 || stats.Permissions != 3 {
		t.Errorf("stats = %+v", stats)
	}

	// ADMIN inherits VIEWER's permissions.
	roles, _ := store.RolesByIDs(ctx, "acme", []string{"ADMIN"})
	if len(roles) != 1 || !slices.Equal(roles[0].PermissionIDs, []string{"orders:read", "orders:write"}) {
		t.Errorf("ADMIN permissions = %+v", roles)
	}

	// alice holds ADMIN directly and VIEWER transitively.
	urs, _ := store.UserRoles(ctx, "acme", "alice")
	var held []string
	for _, ur := range urs {
		held = append(held, ur.RoleID)
	}
	if !slices.Equal(held, []string{"ADMIN", "VIEWER"}) {
		t.Errorf("alice roles = %v", held)
	}

	// Roles are not users.
	if urs, _ := store.UserRoles(ctx, "acme", "ADMIN"); len(urs) != 0 {
		t.Errorf("role ADMIN was imported as a user: %v", urs)
	}

	// Domains stay separate.
	if got := grantsOf(t, store, "globex", "alice"); len(got) != 0 {
		t.Errorf("alice leaked into globex: %v", got)
	}
	if got := grantsOf(t, store, "globex", "carol"); !slices.Equal(got, []string{"invoices:read"}) {
		t.Errorf("carol grants = %v", got)
	}
}

func TestImportCasbinPolicyCustomModel(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "model.conf")
	if err := os.WriteFile(modelPath, []byte(embeddedCasbinModel), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ImportCasbinPolicy(NewMemoryStore(), modelPath, writePolicy(t, testCasbinPolicy)); err != nil {
		t.Fatalf("ImportCasbinPolicy with model file: %v", err)
	}
}

func TestImportCasbinPolicyMissingFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := ImportCasbinPolicy(NewMemoryStore(), filepath.Join(dir, "missing.conf"), writePolicy(t, testCasbinPolicy)); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := ImportCasbinPolicy(NewMemoryStore(), "", filepath.Join(dir, "missing.csv")); err == nil {
		t.Error("expected error for missing policy")
	}
}

func TestSeedAndCasbinImportAreEquivalent(t *testing.T) {
	fromSeed := NewMemoryStore()
	seed, err := ParseSeed([]byte(testSeed))
	if err != nil {
		t.Fatal(err)
	}
	if err := seed.Apply(fromSeed, bcrypt.MinCost); err != nil {
		t.Fatal(err)
	}

	fromCasbin := NewMemoryStore()
	if _, err := ImportCasbinPolicy(fromCasbin, "", writePolicy(t, testCasbinPolicy)); err != nil {
		t.Fatal(err)
	}

	for _, user := range []string{"alice", "bob"} {
		a := grantsOf(t, fromSeed, "acme", user)
		b := grantsOf(t, fromCasbin, "acme", user)
		if !slices.Equal(a, b) {
			t.Errorf("%s: seed grants %v, casbin grants %v", user, a, b)
		}
	}
}
