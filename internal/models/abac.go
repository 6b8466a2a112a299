// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package models

// AbacPolicy attaches a condition to a (resource, action) pair.
//
// Several policies may target the same pair; they combine with OR.
// Attributes hold reference values the condition can name as "resource.<key>".
//
// Example conditions:
//
//	user.department == resource.department
//	user.level >= 3
//	time >= 09:00 AND time <= 18:00
//	client_ip IN 10.0.0.0/8, 192.168.1.10
type AbacPolicy struct {
	ID         string            `json:"id" validate:"required"`
	TenantID   string            `json:"tenant_id" validate:"required"`
	Resource   string            `json:"resource" validate:"required"`
	Action     string            `json:"action" validate:"required"`
	Condition  string            `json:"condition"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Attributes is the flat key/value view used for ABAC evaluation.
type Attributes map[string]string

// Clone returns a copy that is safe to mutate.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Merge overlays other onto a copy of a.
func (a Attributes) Merge(other map[string]string) Attributes {
	out := a.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}
