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
	"github.com/tomtom215/tenantguard/internal/models"
)

// ErrRuleLookup wraps rule store failures.
var ErrRuleLookup = errors.New("authz: rule lookup failed")

// RuleMatcher finds the permission rules that apply to a request.
type RuleMatcher struct {
	rules    catalog.RuleReader
	patterns patternCache
}

// NewRuleMatcher creates a matcher over rules.
func NewRuleMatcher(rules catalog.RuleReader) *RuleMatcher {
	return &RuleMatcher{rules: rules}
}

// Match returns the tenant's enabled rules whose method set and pattern
// accept the request, most specific first (see SortRules).
func (m *RuleMatcher) Match(ctx context.Context, tenantID, path, method string) ([]models.PermissionRule, error) {
	rules, err := m.rules.Rules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuleLookup, err)
	}

	matched := make([]models.PermissionRule, 0, 2)
	for i := range rules {
		r := &rules[i]
		if r.TenantID != tenantID || !r.Enabled || !r.AppliesTo(method) {
			continue
		}
		if m.patterns.matches(r.Pattern, path) {
			matched = append(matched, *r)
		}
	}

	SortRules(matched)
	return matched, nil
}

// Rules returns every rule of the tenant, disabled ones included, in match order.
func (m *RuleMatcher) Rules(ctx context.Context, tenantID string) ([]models.PermissionRule, error) {
	rules, err := m.rules.Rules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuleLookup, err)
	}
	rules = slices.DeleteFunc(rules, func(r models.PermissionRule) bool { return r.TenantID != tenantID })
	SortRules(rules)
	return rules, nil
}

// SortRules orders rules the way Match returns them: priority descending,
// then longer pattern, then rules with an explicit method list, then rule
// ID ascending. The order is total, so the first rule is deterministic
// regardless of store order.
func SortRules(rules []models.PermissionRule) {
	slices.SortFunc(rules, compareRules)
}

func compareRules(a, b models.PermissionRule) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	if c := cmp.Compare(len(b.Pattern), len(a.Pattern)); c != 0 {
		return c
	}
	if aScoped, bScoped := len(a.Methods) > 0, len(b.Methods) > 0; aScoped != bScoped {
		if aScoped {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.ID, b.ID)
}
