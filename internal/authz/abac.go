// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package authz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/tenantguard/internal/catalog"
	"github.com/tomtom215/tenantguard/internal/logging"
)

// ErrAbacLookup wraps policy store failures.
var ErrAbacLookup = errors.New("authz: abac policy lookup failed")

// AbacEvaluator checks attribute conditions.
//
// Policy conditions are OR-ed: with no policies for (resource, action) the
// check passes, otherwise at least one policy must hold. A clause the
// evaluator does not understand holds and is reported as a warning; the
// other clauses of its condition are still evaluated.
type AbacEvaluator struct {
	policies catalog.PolicyReader
	now      func() time.Time

	parsed sync.Map // condition string -> parsedCondition
}

type parsedCondition struct {
	cond *condition
	err  error
}

// AbacOption configures an AbacEvaluator.
type AbacOption func(*AbacEvaluator)

// WithAbacClock sets the clock used when the context carries no "time".
func WithAbacClock(now func() time.Time) AbacOption {
	return func(e *AbacEvaluator) { e.now = now }
}

// NewAbacEvaluator creates an evaluator over policies.
func NewAbacEvaluator(policies catalog.PolicyReader, opts ...AbacOption) *AbacEvaluator {
	e := &AbacEvaluator{policies: policies, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckPolicy evaluates the tenant's policies for resource:action against attrs.
func (e *AbacEvaluator) CheckPolicy(ctx context.Context, tenantID, resource, action string, attrs map[string]string) (bool, error) {
	policies, err := e.policies.Policies(ctx, tenantID, resource, action)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrAbacLookup, err)
	}
	if len(policies) == 0 {
		return true, nil
	}

	now := e.now()
	for i := range policies {
		p := &policies[i]
		cond, err := e.condition(p.Condition)
		if err != nil {
			AbacUnknownClausesTotal.WithLabelValues("condition").Inc()
			logging.Ctx(ctx).Warn().
				Err(err).
				Str("tenant_id", tenantID).
				Str("policy_id", p.ID).
				Str("condition", p.Condition).
				Msg("Unrecognized ABAC condition clause, treating it as passed")
		}
		if cond.eval(&resolver{attrs: attrs, policy: p.Attributes, now: now}) {
			return true, nil
		}
	}
	return false, nil
}

func (e *AbacEvaluator) condition(src string) (*condition, error) {
	if v, ok := e.parsed.Load(src); ok {
		pc := v.(parsedCondition)
		return pc.cond, pc.err
	}
	cond, err := parseCondition(src)
	e.parsed.Store(src, parsedCondition{cond: cond, err: err})
	return cond, err
}

// CheckConditions evaluates permission-level conditions. Every key must
// hold. A scalar value means equality; a map applies operators ($eq, $ne,
// $in, $nin, $gt, $gte, $lt, $lte), all of which must hold. A missing
// attribute fails its key; an unknown operator passes with a warning.
func (e *AbacEvaluator) CheckConditions(ctx context.Context, conditions map[string]any, attrs map[string]string) bool {
	// Sorted so evaluation and logging order is stable.
	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v, ok := attrs[key]
		if !ok {
			return false
		}

		ops, isMap := conditions[key].(map[string]any)
		if !isMap {
			if !scalarEqual(v, conditions[key]) {
				return false
			}
			continue
		}

		for op, want := range ops {
			switch evalOperator(op, v, want) {
			case opFailed:
				return false
			case opUnknown:
				AbacUnknownClausesTotal.WithLabelValues("operator").Inc()
				logging.Ctx(ctx).Warn().
					Str("attribute", key).
					Str("operator", op).
					Msg("Unrecognized ABAC operator, passing")
			}
		}
	}
	return true
}
