// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

// Package catalog provides read access to the tenant-scoped authorization
// catalog: users, roles, permissions, user-role assignments, permission
// rules and ABAC policies.
//
// The decision engine only reads the catalog. Implementations:
//
//   - MemoryStore: in-process maps, loaded from a JSON seed or a Casbin policy file
//   - PostgresStore: pgx pool over the tables described in postgres.go
//   - BreakerStore: wraps any Store with a gobreaker circuit breaker
//
// Every read takes the tenant id as its first key and never returns rows
// belonging to another tenant.
package catalog

import (
	"context"
	"errors"

	"github.com/tomtom215/tenantguard/internal/models"
)

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("catalog: not found")

// UserRoleReader lists role assignments.
type UserRoleReader interface {
	UserRoles(ctx context.Context, tenantID, userID string) ([]models.UserRole, error)
}

// RoleReader resolves roles by id. Unknown ids are skipped, not errors.
type RoleReader interface {
	RolesByIDs(ctx context.Context, tenantID string, roleIDs []string) ([]models.Role, error)
}

// PermissionReader resolves permissions.
type PermissionReader interface {
	// PermissionsByIDs skips unknown ids.
	PermissionsByIDs(ctx context.Context, tenantID string, permissionIDs []string) ([]models.Permission, error)

	// PermissionByResourceAction returns ErrNotFound when the pair is not in the catalog.
	PermissionByResourceAction(ctx context.Context, tenantID, resource, action string) (*models.Permission, error)
}

// RuleReader lists permission rules. Disabled rules are included; filtering is the matcher's job.
type RuleReader interface {
	Rules(ctx context.Context, tenantID string) ([]models.PermissionRule, error)
}

// PolicyReader lists the ABAC policies attached to (resource, action).
type PolicyReader interface {
	Policies(ctx context.Context, tenantID, resource, action string) ([]models.AbacPolicy, error)
}

// UserReader backs the login and refresh flows.
type UserReader interface {
	UserByUsername(ctx context.Context, tenantID, username string) (*models.User, error)
	UserByID(ctx context.Context, tenantID, userID string) (*models.User, error)
}

// Store is the full read surface.
type Store interface {
	UserRoleReader
	RoleReader
	PermissionReader
	RuleReader
	PolicyReader
	UserReader
}

// ChangeKind classifies a catalog mutation.
type ChangeKind string

const (
	ChangeUserRoles   ChangeKind = "user_roles"
	ChangeRoles       ChangeKind = "roles"
	ChangePermissions ChangeKind = "permissions"
	ChangeRules       ChangeKind = "rules"
	ChangePolicies    ChangeKind = "policies"
	ChangeUsers       ChangeKind = "users"
)

// ChangeEvent describes a mutation so caches can invalidate. UserID is
// set only for ChangeUserRoles.
type ChangeEvent struct {
	Kind     ChangeKind
	TenantID string
	UserID   string
}

// ChangeNotifier is implemented by stores that can report mutations.
type ChangeNotifier interface {
	Subscribe(fn func(ChangeEvent))
}
