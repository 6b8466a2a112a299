// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/tenantguard/internal/logging"
	"github.com/tomtom215/tenantguard/internal/models"
)

//go:embed casbin_model.conf
var embeddedCasbinModel string

// ErrInvalidCasbinPolicy is returned for policy rows the importer cannot map.
var ErrInvalidCasbinPolicy = errors.New("invalid casbin policy")

// CasbinImportStats summarizes an import.
type CasbinImportStats struct {
	Tenants     int
	Roles       int
	Permissions int
	Assignments int
}

// ImportCasbinPolicy reads an RBAC-with-domains Casbin policy and writes
// the equivalent roles, permissions and user-role assignments into store.
//
// Role inheritance (g rows whose first field is itself a role) is flattened:
// each role receives every permission it inherits, and each user is
// assigned every role it holds directly or transitively. Casbin has no
// notion of path rules or ABAC policies; those come from the JSON seed.
//
// modelPath may be empty to use the built-in model.
func ImportCasbinPolicy(store *MemoryStore, modelPath, policyPath string) (CasbinImportStats, error) {
	var stats CasbinImportStats

	var (
		m   model.Model
		err error
	)
	if modelPath != "" {
		m, err = model.NewModelFromFile(modelPath)
	} else {
		m, err = model.NewModelFromString(embeddedCasbinModel)
	}
	if err != nil {
		return stats, fmt.Errorf("failed to load casbin model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m, fileadapter.NewAdapter(policyPath))
	if err != nil {
		return stats, fmt.Errorf("failed to load casbin policy: %w", err)
	}

	policies, err := enforcer.GetPolicy()
	if err != nil {
		return stats, fmt.Errorf("failed to read casbin policy: %w", err)
	}
	grouping, err := enforcer.GetGroupingPolicy()
	if err != nil {
		return stats, fmt.Errorf("failed to read casbin grouping policy: %w", err)
	}

	// tenant -> role names
	roles := make(map[string]map[string]struct{})
	addRole := func(tenant, role string) {
		if roles[tenant] == nil {
			roles[tenant] = make(map[string]struct{})
		}
		roles[tenant][role] = struct{}{}
	}
	for _, p := range policies {
		if len(p) < 4 {
			return stats, fmt.Errorf("%w: p row %v needs role, tenant, resource, action", ErrInvalidCasbinPolicy, p)
		}
		addRole(p[1], p[0])
	}
	for _, g := range grouping {
		if len(g) < 3 {
			return stats, fmt.Errorf("%w: g row %v needs subject, role, tenant", ErrInvalidCasbinPolicy, g)
		}
		addRole(g[2], g[1])
	}

	tenants := make([]string, 0, len(roles))
	for tenant := range roles {
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)
	stats.Tenants = len(tenants)

	for _, tenant := range tenants {
		seenPerms := make(map[string]struct{})
		for role := range roles[tenant] {
			implicit, err := enforcer.GetImplicitPermissionsForUser(role, tenant)
			if err != nil {
				return stats, fmt.Errorf("failed to resolve permissions of %s in %s: %w", role, tenant, err)
			}

			var permIDs []string
			for _, row := range implicit {
				resource, action := row[2], row[3]
				id := models.PermissionID(resource, action)
				if _, ok := seenPerms[id]; !ok {
					seenPerms[id] = struct{}{}
					err := store.PutPermission(models.Permission{
						ID:       id,
						TenantID: tenant,
						Resource: resource,
						Action:   action,
						Type:     models.PermissionFunctional,
					})
					if err != nil {
						return stats, err
					}
					stats.Permissions++
				}
				permIDs = append(permIDs, id)
			}
			sort.Strings(permIDs)
			permIDs = slices.Compact(permIDs)

			if err := store.PutRole(models.Role{ID: role, TenantID: tenant, Name: role, PermissionIDs: permIDs}); err != nil {
				return stats, err
			}
			stats.Roles++
		}
	}

	seenUsers := make(map[tenantKey]struct{})
	for _, g := range grouping {
		subject, tenant := g[0], g[2]
		if _, isRole := roles[tenant][subject]; isRole {
			continue
		}
		if _, done := seenUsers[tenantKey{tenant, subject}]; done {
			continue
		}
		seenUsers[tenantKey{tenant, subject}] = struct{}{}

		held, err := enforcer.GetImplicitRolesForUser(subject, tenant)
		if err != nil {
			return stats, fmt.Errorf("failed to resolve roles of %s in %s: %w", subject, tenant, err)
		}
		for _, role := range held {
			if err := store.AssignRole(models.UserRole{TenantID: tenant, UserID: subject, RoleID: role}); err != nil {
				return stats, err
			}
			stats.Assignments++
		}
	}

	logging.Info().
		Str("policy", policyPath).
		Int("tenants", stats.Tenants).
		Int("roles", stats.Roles).
		Int("permissions", stats.Permissions).
		Int("assignments", stats.Assignments).
		Msg("Casbin policy imported")
	return stats, nil
}
