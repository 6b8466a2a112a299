// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

/*
rbac.go - Role-Based Access Control Models

Key Structures:
  - Role: tenant-owned named set of permission ids
  - Permission: a (resource, action) capability, optionally carrying ABAC conditions
  - UserRole: join row assigning a role to a user inside one tenant
*/

package models

import (
	"errors"
	"fmt"
	"strings"
)

// AdminPermissionPrefix is the optional prefix used by PermissionRule.Permission.
const AdminPermissionPrefix = "admin:"

// ErrInvalidPermissionID is returned when an identifier is not "resource:action".
var ErrInvalidPermissionID = errors.New("invalid permission identifier")

// PermissionType classifies a permission.
type PermissionType string

const (
	// PermissionFunctional guards an operation (menu entry, endpoint, button).
	PermissionFunctional PermissionType = "FUNCTIONAL"

	// PermissionData guards a slice of data (rows, fields).
	PermissionData PermissionType = "DATA"
)

// Valid reports whether t is a known permission type.
func (t PermissionType) Valid() bool {
	return t == PermissionFunctional || t == PermissionData
}

// Role is a tenant-scoped named grouping of permissions.
type Role struct {
	// ID is stable for the lifetime of the role
	ID string `json:"id" validate:"required"`

	TenantID string `json:"tenant_id" validate:"required"`

	// Name is what ends up in the token's roles claim
	Name string `json:"name" validate:"required"`

	// PermissionIDs references Permission.ID values in the same tenant
	PermissionIDs []string `json:"permission_ids"`
}

// Permission is a grantable capability within a tenant.
type Permission struct {
	ID       string         `json:"id" validate:"required"`
	TenantID string         `json:"tenant_id" validate:"required"`
	Resource string         `json:"resource" validate:"required"`
	Action   string         `json:"action" validate:"required"`
	Type     PermissionType `json:"type" validate:"omitempty,oneof=FUNCTIONAL DATA"`

	// AbacConditions must all hold in addition to RBAC ownership.
	// Values are either scalars (equality) or operator maps such as {"$gte": 3}.
	AbacConditions map[string]any `json:"abac_conditions,omitempty"`
}

// Identifier returns the canonical "resource:action" string.
func (p *Permission) Identifier() string {
	return p.Resource + ":" + p.Action
}

// Matches reports whether the permission grants (resource, action).
func (p *Permission) Matches(resource, action string) bool {
	return p.Resource == resource && p.Action == action
}

// HasConditions reports whether the permission carries ABAC conditions.
func (p *Permission) HasConditions() bool {
	return len(p.AbacConditions) > 0
}

// UserRole assigns a role to a user inside one tenant. Unique per triple.
type UserRole struct {
	TenantID string `json:"tenant_id" validate:"required"`
	UserID   string `json:"user_id" validate:"required"`
	RoleID   string `json:"role_id" validate:"required"`
}

// ParsePermissionID strips an optional "admin:" prefix and splits the
// remainder at the first colon into resource and action.
func ParsePermissionID(id string) (resource, action string, err error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(id), AdminPermissionPrefix)
	resource, action, ok := strings.Cut(trimmed, ":")
	if !ok || resource == "" || action == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPermissionID, id)
	}
	return resource, action, nil
}

// PermissionID joins resource and action into the canonical identifier.
func PermissionID(resource, action string) string {
	return resource + ":" + action
}
