// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package models

import "strings"

// PermissionRule maps administrative endpoints to the permission they require.
//
// Permission is a required identifier string, not a reference to a Permission
// row, so rules can be configured independently of the permission catalog.
type PermissionRule struct {
	ID       string `json:"id" validate:"required"`
	TenantID string `json:"tenant_id" validate:"required"`

	// Pattern is an Ant-style path pattern: "*" is one segment, "**" any number.
	Pattern string `json:"pattern" validate:"required,startswith=/"`

	// Methods restricts the HTTP verbs the rule applies to. Empty means all.
	Methods []string `json:"methods,omitempty"`

	// Permission is "resource:action", optionally prefixed with "admin:".
	Permission string `json:"permission" validate:"required,permid"`

	Enabled bool `json:"enabled"`

	// Priority orders matches; higher wins.
	Priority int `json:"priority"`
}

// AppliesTo reports whether the rule's method set admits method.
func (r *PermissionRule) AppliesTo(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
