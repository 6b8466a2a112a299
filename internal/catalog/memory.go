// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package catalog

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/tomtom215/tenantguard/internal/models"
)

var (
	// ErrDuplicatePermission is returned when a second permission claims an
	// existing (resource, action) pair in the same tenant.
	ErrDuplicatePermission = errors.New("catalog: permission resource:action already exists in tenant")

	ErrMissingTenant = errors.New("catalog: tenant id is required")
)

type tenantData struct {
	users       map[string]models.User // by id
	roles       map[string]models.Role
	permissions map[string]models.Permission
	userRoles   map[string]map[string]struct{} // userID -> roleIDs
	rules       map[string]models.PermissionRule
	policies    map[string]models.AbacPolicy
}

func newTenantData() *tenantData {
	return &tenantData{
		users:       make(map[string]models.User),
		roles:       make(map[string]models.Role),
		permissions: make(map[string]models.Permission),
		userRoles:   make(map[string]map[string]struct{}),
		rules:       make(map[string]models.PermissionRule),
		policies:    make(map[string]models.AbacPolicy),
	}
}

// MemoryStore is a concurrency-safe in-process Store with mutation methods.
// Readers receive copies; mutating a returned value never changes the store.
type MemoryStore struct {
	mu        sync.RWMutex
	tenants   map[string]*tenantData
	listeners []func(ChangeEvent)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]*tenantData)}
}

// Subscribe registers fn to run after every mutation. fn must not call back
// into mutation methods.
func (s *MemoryStore) Subscribe(fn func(ChangeEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *MemoryStore) notify(ev ChangeEvent) {
	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// tenant returns the tenant's data, creating it when create is set. Callers hold mu.
func (s *MemoryStore) tenant(id string, create bool) *tenantData {
	td, ok := s.tenants[id]
	if !ok && create {
		td = newTenantData()
		s.tenants[id] = td
	}
	return td
}

// ===== Mutations =====

func (s *MemoryStore) PutUser(u models.User) error {
	if u.TenantID == "" {
		return ErrMissingTenant
	}
	u.Attributes = maps.Clone(u.Attributes)

	s.mu.Lock()
	s.tenant(u.TenantID, true).users[u.ID] = u
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: ChangeUsers, TenantID: u.TenantID, UserID: u.ID})
	return nil
}

func (s *MemoryStore) PutRole(r models.Role) error {
	if r.TenantID == "" {
		return ErrMissingTenant
	}
	r.PermissionIDs = slices.Clone(r.PermissionIDs)

	s.mu.Lock()
	s.tenant(r.TenantID, true).roles[r.ID] = r
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: ChangeRoles, TenantID: r.TenantID})
	return nil
}

func (s *MemoryStore) DeleteRole(tenantID, roleID string) {
	s.mu.Lock()
	if td := s.tenant(tenantID, false); td != nil {
		delete(td.roles, roleID)
		for _, roles := range td.userRoles {
			delete(roles, roleID)
		}
	}
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: ChangeRoles, TenantID: tenantID})
}

// GrantPermission adds permissionID to a role's permission set.
func (s *MemoryStore) GrantPermission(tenantID, roleID, permissionID string) error {
	s.mu.Lock()
	td := s.tenant(tenantID, false)
	if td == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	role, ok := td.roles[roleID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	if !slices.Contains(role.PermissionIDs, permissionID) {
		role.PermissionIDs = append(slices.Clone(role.PermissionIDs), permissionID)
		td.roles[roleID] = role
	}
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: ChangeRoles, TenantID: tenantID})
	return nil
}

// RevokePermission removes permissionID from a role's permission set.
func (s *MemoryStore) RevokePermission(tenantID, roleID, permissionID string) {
	s.mu.Lock()
	if td := s.tenant(tenantID, false); td != nil {
		if role, ok := td.roles[roleID]; ok {
			role.PermissionIDs = slices.DeleteFunc(slices.Clone(role.PermissionIDs), func(id string) bool {
				return id == permissionID
			})
			td.roles[roleID] = role
		}
	}
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: ChangeRoles, TenantID: tenantID})
}

// PutPermission inserts or replaces a permission. The (resource, action)
// pair must stay unique within the tenant.
func (s *MemoryStore) PutPermission(p models.Permission) error {
	if p.TenantID == "" {
		return ErrMissingTenant
	}
	p.AbacConditions = maps.Clone(p.AbacConditions)

	s.mu.Lock()
	td := s.tenant(p.TenantID, true)
	for id, existing := range td.permissions {
		if id != p.ID && existing.Matches(p.Resource, p.Action) {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s (held by %s)", ErrDuplicatePermission, p.Identifier(), id)
		}
	}
	td.permissions[p.ID] = p
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: ChangePermissions, TenantID: p.TenantID})
	return nil
}

func (s *MemoryStore) DeletePermission(tenantID, permissionID string) {
	s.mu.Lock()
	if td := s.tenant(tenantID, false); td != nil {
		delete(td.permissions, permissionID)
	}
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: ChangePermissions, TenantID: tenantID})
}

// AssignRole is idempotent per (tenant, user, role).
func (s *MemoryStore) AssignRole(ur models.UserRole) error {
	if ur.TenantID == "" {
		return ErrMissingTenant
	}

	s.mu.Lock()
	td := s.tenant(ur.TenantID, true)
	set, ok := td.userRoles[ur.UserID]
	if !ok {
		set = make(map[string]struct{})
		td.userRoles[ur.UserID] = set
	}
	set[ur.RoleID] = struct{}{}
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: ChangeUserRoles, TenantID: ur.TenantID, UserID: ur.UserID})
	return nil
}

func (s *MemoryStore) UnassignRole(ur models.UserRole) {
	s.mu.Lock()
	if td := s.tenant(ur.TenantID, false); td != nil {
		delete(td.userRoles[ur.UserID], ur.RoleID)
	}
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: ChangeUserRoles, TenantID: ur.TenantID, UserID: ur.UserID})
}

func (s *MemoryStore) PutRule(r models.PermissionRule) error {
	if r.TenantID == "" {
		return ErrMissingTenant
	}
	r.Methods = slices.Clone(r.Methods)

	s.mu.Lock()
	s.tenant(r.TenantID, true).rules[r.ID] = r
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: ChangeRules, TenantID: r.TenantID})
	return nil
}

func (s *MemoryStore) DeleteRule(tenantID, ruleID string) {
	s.mu.Lock()
	if td := s.tenant(tenantID, false); td != nil {
		delete(td.rules, ruleID)
	}
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: ChangeRules, TenantID: tenantID})
}

func (s *MemoryStore) PutPolicy(p models.AbacPolicy) error {
	if p.TenantID == "" {
		return ErrMissingTenant
	}
	p.Attributes = maps.Clone(p.Attributes)

	s.mu.Lock()
	s.tenant(p.TenantID, true).policies[p.ID] = p
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: ChangePolicies, TenantID: p.TenantID})
	return nil
}

func (s *MemoryStore) DeletePolicy(tenantID, policyID string) {
	s.mu.Lock()
	if td := s.tenant(tenantID, false); td != nil {
		delete(td.policies, policyID)
	}
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: ChangePolicies, TenantID: tenantID})
}

// ===== Reads =====

func (s *MemoryStore) UserRoles(_ context.Context, tenantID, userID string) ([]models.UserRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	td := s.tenant(tenantID, false)
	if td == nil {
		return nil, nil
	}
	roleIDs := make([]string, 0, len(td.userRoles[userID]))
	for id := range td.userRoles[userID] {
		roleIDs = append(roleIDs, id)
	}
	sort.Strings(roleIDs)

	out := make([]models.UserRole, len(roleIDs))
	for i, id := range roleIDs {
		out[i] = models.UserRole{TenantID: tenantID, UserID: userID, RoleID: id}
	}
	return out, nil
}

func (s *MemoryStore) RolesByIDs(_ context.Context, tenantID string, roleIDs []string) ([]models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	td := s.tenant(tenantID, false)
	if td == nil {
		return nil, nil
	}
	out := make([]models.Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		if r, ok := td.roles[id]; ok {
			r.PermissionIDs = slices.Clone(r.PermissionIDs)
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) PermissionsByIDs(_ context.Context, tenantID string, permissionIDs []string) ([]models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	td := s.tenant(tenantID, false)
	if td == nil {
		return nil, nil
	}
	out := make([]models.Permission, 0, len(permissionIDs))
	for _, id := range permissionIDs {
		if p, ok := td.permissions[id]; ok {
			p.AbacConditions = maps.Clone(p.AbacConditions)
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) PermissionByResourceAction(_ context.Context, tenantID, resource, action string) (*models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if td := s.tenant(tenantID, false); td != nil {
		for _, p := range td.permissions {
			if p.Matches(resource, action) {
				p.AbacConditions = maps.Clone(p.AbacConditions)
				return &p, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: permission %s:%s", ErrNotFound, resource, action)
}

func (s *MemoryStore) Rules(_ context.Context, tenantID string) ([]models.PermissionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	td := s.tenant(tenantID, false)
	if td == nil {
		return nil, nil
	}
	out := make([]models.PermissionRule, 0, len(td.rules))
	for _, r := range td.rules {
		r.Methods = slices.Clone(r.Methods)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Policies(_ context.Context, tenantID, resource, action string) ([]models.AbacPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	td := s.tenant(tenantID, false)
	if td == nil {
		return nil, nil
	}
	var out []models.AbacPolicy
	for _, p := range td.policies {
		if p.Resource == resource && p.Action == action {
			p.Attributes = maps.Clone(p.Attributes)
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UserByUsername(_ context.Context, tenantID, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if td := s.tenant(tenantID, false); td != nil {
		for _, u := range td.users {
			if u.Username == username {
				u.Attributes = maps.Clone(u.Attributes)
				return &u, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: user %q", ErrNotFound, username)
}

func (s *MemoryStore) UserByID(_ context.Context, tenantID, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if td := s.tenant(tenantID, false); td != nil {
		if u, ok := td.users[userID]; ok {
			u.Attributes = maps.Clone(u.Attributes)
			return &u, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
}

// Tenants returns the ids of tenants holding any data, sorted.
func (s *MemoryStore) Tenants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.tenants))
}
