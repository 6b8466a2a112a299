// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package authz

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/tomtom215/tenantguard/internal/catalog"
	"github.com/tomtom215/tenantguard/internal/logging"
	"github.com/tomtom215/tenantguard/internal/models"
)

// ErrRbacLookup wraps store failures while resolving roles or permissions.
var ErrRbacLookup = errors.New("authz: rbac lookup failed")

// RbacStore is the part of the catalog the resolver reads.
type RbacStore interface {
	catalog.UserRoleReader
	catalog.RoleReader
	catalog.PermissionReader
}

// RbacResolver answers "does this user hold resource:action in this tenant"
// from the catalog, following UserRole -> Role -> Permission.
type RbacResolver struct {
	store RbacStore
	cache PermissionCache
}

// RbacOption configures an RbacResolver.
type RbacOption func(*RbacResolver)

// WithPermissionCache enables caching of resolved grants.
func WithPermissionCache(c PermissionCache) RbacOption {
	return func(r *RbacResolver) { r.cache = c }
}

// NewRbacResolver creates a resolver. When store implements
// catalog.ChangeNotifier and a cache is configured, catalog mutations
// invalidate the affected cache entries.
func NewRbacResolver(store RbacStore, opts ...RbacOption) *RbacResolver {
	r := &RbacResolver{store: store}
	for _, opt := range opts {
		opt(r)
	}
	if n, ok := store.(catalog.ChangeNotifier); ok && r.cache != nil {
		n.Subscribe(r.onChange)
	}
	return r
}

// onChange keeps the cache consistent with the catalog. Assignment changes
// touch one user; role and permission changes can affect any user of the tenant.
func (r *RbacResolver) onChange(ev catalog.ChangeEvent) {
	ctx := context.Background()
	switch ev.Kind {
	case catalog.ChangeUserRoles:
		if ev.UserID != "" {
			r.cache.InvalidateUser(ctx, ev.TenantID, ev.UserID)
			return
		}
		r.cache.InvalidateTenant(ctx, ev.TenantID)
	case catalog.ChangeRoles, catalog.ChangePermissions:
		r.cache.InvalidateTenant(ctx, ev.TenantID)
	}
}

// grants resolves (or loads from cache) the roles and permissions of a user.
// The cache generation is read before the catalog, so grants resolved while
// a mutation is being invalidated are not written back.
func (r *RbacResolver) grants(ctx context.Context, tenantID, userID string) (*UserGrants, error) {
	var (
		gen       uint64
		cacheable bool
	)
	if r.cache != nil {
		if g, ok := r.cache.Get(ctx, tenantID, userID); ok {
			return g, nil
		}
		gen, cacheable = r.cache.Generation(ctx, tenantID)
	}

	assignments, err := r.store.UserRoles(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: user roles: %w", ErrRbacLookup, err)
	}

	g := &UserGrants{}
	if len(assignments) > 0 {
		roleIDs := make([]string, 0, len(assignments))
		for _, ur := range assignments {
			roleIDs = append(roleIDs, ur.RoleID)
		}

		g.Roles, err = r.store.RolesByIDs(ctx, tenantID, roleIDs)
		if err != nil {
			return nil, fmt.Errorf("%w: roles: %w", ErrRbacLookup, err)
		}

		var permIDs []string
		for _, role := range g.Roles {
			permIDs = append(permIDs, role.PermissionIDs...)
		}
		slices.Sort(permIDs)
		permIDs = slices.Compact(permIDs)

		if len(permIDs) > 0 {
			g.Permissions, err = r.store.PermissionsByIDs(ctx, tenantID, permIDs)
			if err != nil {
				return nil, fmt.Errorf("%w: permissions: %w", ErrRbacLookup, err)
			}
		}
	}

	slices.SortFunc(g.Roles, func(a, b models.Role) int { return cmp.Compare(a.Name, b.Name) })
	slices.SortFunc(g.Permissions, func(a, b models.Permission) int {
		return cmp.Compare(a.Identifier(), b.Identifier())
	})
	g.Permissions = slices.CompactFunc(g.Permissions, func(a, b models.Permission) bool {
		return a.Identifier() == b.Identifier()
	})

	if cacheable {
		r.cache.Set(ctx, tenantID, userID, gen, g)
	}
	return g, nil
}

// HasPermission reports whether any role assigned to the user grants
// resource:action. No assignments, or assignments to unknown roles, yield false.
func (r *RbacResolver) HasPermission(ctx context.Context, tenantID, userID, resource, action string) (bool, error) {
	g, err := r.grants(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	for i := range g.Permissions {
		if g.Permissions[i].Matches(resource, action) {
			return true, nil
		}
	}
	return false, nil
}

// GetUserPermissions returns the user's effective permissions, deduplicated
// and sorted by identifier.
func (r *RbacResolver) GetUserPermissions(ctx context.Context, tenantID, userID string) ([]models.Permission, error) {
	g, err := r.grants(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(g.Permissions), nil
}

// GetUserRoles returns the user's roles sorted by name.
func (r *RbacResolver) GetUserRoles(ctx context.Context, tenantID, userID string) ([]models.Role, error) {
	g, err := r.grants(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(g.Roles), nil
}

// BatchHasPermission checks several "resource:action" identifiers at once.
// Unparsable identifiers map to false.
func (r *RbacResolver) BatchHasPermission(ctx context.Context, tenantID, userID string, permissionIDs []string) (map[string]bool, error) {
	g, err := r.grants(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	held := make(map[string]struct{}, len(g.Permissions))
	for i := range g.Permissions {
		held[g.Permissions[i].Identifier()] = struct{}{}
	}

	out := make(map[string]bool, len(permissionIDs))
	for _, id := range permissionIDs {
		resource, action, err := models.ParsePermissionID(id)
		if err != nil {
			logging.Ctx(ctx).Debug().Str("permission", id).Msg("Unparsable permission in batch check")
			out[id] = false
			continue
		}
		_, out[id] = held[models.PermissionID(resource, action)]
	}
	return out, nil
}

// ResolveGrants returns role names and permission identifiers for token
// issuance.
func (r *RbacResolver) ResolveGrants(ctx context.Context, tenantID, userID string) (roles, permissions []string, err error) {
	g, err := r.grants(ctx, tenantID, userID)
	if err != nil {
		return nil, nil, err
	}

	roles = make([]string, 0, len(g.Roles))
	for _, role := range g.Roles {
		roles = append(roles, role.Name)
	}
	roles = slices.Compact(roles)

	permissions = make([]string, 0, len(g.Permissions))
	for i := range g.Permissions {
		permissions = append(permissions, g.Permissions[i].Identifier())
	}
	return roles, permissions, nil
}
