// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/tenantguard/internal/catalog"
	"github.com/tomtom215/tenantguard/internal/models"
)

func fixedClock(hour, minute int) func() time.Time {
	return func() time.Time { return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC) }
}

func TestConditionClauses(t *testing.T) {
	policyAttrs := map[string]string{"department": "sales", "resource.owner": "u-1"}

	tests := []struct {
		name  string
		cond  string
		attrs map[string]string
		clock func() time.Time
		want  bool
	}{
		// equality
		{"ref == ref", "user.department == resource.department", map[string]string{"department": "sales"}, nil, true},
		{"ref == ref mismatch", "user.department == resource.department", map[string]string{"department": "ops"}, nil, false},
		{"ref == quoted", "region == 'eu'", map[string]string{"region": "eu"}, nil, true},
		{"ref != quoted", "region != \"eu\"", map[string]string{"region": "us"}, nil, true},
		{"numeric equality", "level == 3", map[string]string{"level": "3.0"}, nil, true},
		{"resource.x falls back to prefixed policy attribute", "user_id == resource.owner", map[string]string{"user_id": "u-1"}, nil, true},
		{"missing key is false", "user.department == 'sales'", map[string]string{}, nil, false},
		{"missing key != is false", "user.department != 'sales'", map[string]string{}, nil, false},

		// thresholds
		{"gte met", "clearance >= 3", map[string]string{"clearance": "3"}, nil, true},
		{"gte unmet", "clearance >= 3", map[string]string{"clearance": "2"}, nil, false},
		{"gt", "clearance > 3", map[string]string{"clearance": "3"}, nil, false},
		{"lt", "risk < 0.5", map[string]string{"risk": "0.2"}, nil, true},
		{"lte ref both sides", "spent <= budget", map[string]string{"spent": "10", "budget": "10"}, nil, true},
		{"non-numeric threshold", "clearance >= 3", map[string]string{"clearance": "high"}, nil, false},

		// time of day
		{"time range inside", "time >= 09:00 AND time <= 17:00", nil, fixedClock(12, 0), true},
		{"time range outside", "time >= 09:00 AND time <= 17:00", nil, fixedClock(18, 30), false},
		{"time from context", "time >= 09:00 AND time <= 17:00", map[string]string{"time": "08:15"}, fixedClock(12, 0), false},
		{"time RFC3339 context", "time IN 09:00-17:00", map[string]string{"time": "2026-03-02T10:30:00Z"}, nil, true},
		{"window", "time IN 09:00-17:00", nil, fixedClock(17, 0), true},
		{"window wraps midnight, late", "time IN 22:00-06:00", nil, fixedClock(23, 10), true},
		{"window wraps midnight, early", "time IN 22:00-06:00", nil, fixedClock(5, 59), true},
		{"window wraps midnight, day", "time IN 22:00-06:00", nil, fixedClock(12, 0), false},

		// membership
		{"ip in cidr", "client_ip IN 10.0.0.0/8, 192.168.1.7", map[string]string{"client_ip": "10.20.30.40"}, nil, true},
		{"ip exact", "client_ip IN 10.0.0.0/8, 192.168.1.7", map[string]string{"client_ip": "192.168.1.7"}, nil, true},
		{"ip outside", "client_ip IN 10.0.0.0/8, 192.168.1.7", map[string]string{"client_ip": "172.16.0.1"}, nil, false},
		{"ipv6 cidr", "client_ip IN 2001:db8::/32", map[string]string{"client_ip": "2001:db8::1"}, nil, true},
		{"not an ip", "client_ip IN 10.0.0.0/8", map[string]string{"client_ip": "localhost"}, nil, false},
		{"value list", "region IN 'eu', 'us'", map[string]string{"region": "us"}, nil, true},
		{"comma inside listed literal", "region IN 'eu, west', 'us'", map[string]string{"region": "eu, west"}, nil, true},

		// quoted literals
		{"operator inside literal", "dept != 'x==y'", map[string]string{"dept": "z"}, nil, true},
		{"operator inside literal matches", "dept == 'x==y'", map[string]string{"dept": "x==y"}, nil, true},
		{"keywords inside literal", "note == 'a OR b AND c'", map[string]string{"note": "a OR b AND c"}, nil, true},

		// composition
		{"OR binds tighter than AND", "false AND true OR true", nil, nil, false},
		{"OR groups the right-hand clauses", "level >= 3 AND dept == 'x' OR vip == 'yes'",
			map[string]string{"level": "1", "dept": "y", "vip": "yes"}, nil, false},
		{"OR groups, every conjunct met", "level >= 3 AND dept == 'x' OR vip == 'yes'",
			map[string]string{"level": "5", "dept": "y", "vip": "yes"}, nil, true},
		{"all AND", "region == 'eu' AND clearance >= 2", map[string]string{"region": "eu", "clearance": "1"}, nil, false},
		{"lowercase keywords", "region == 'us' or clearance >= 2 and region == 'eu'", map[string]string{"region": "eu", "clearance": "3"}, nil, true},
		{"true literal", "true", nil, nil, true},
		{"false literal", "FALSE", nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := parseCondition(tt.cond)
			if err != nil {
				t.Fatalf("parseCondition(%q): %v", tt.cond, err)
			}
			clock := tt.clock
			if clock == nil {
				clock = fixedClock(12, 0)
			}
			r := &resolver{attrs: tt.attrs, policy: policyAttrs, now: clock()}
			if got := cond.eval(r); got != tt.want {
				t.Errorf("eval(%q) = %v, want %v", tt.cond, got, tt.want)
			}
		})
	}
}

func TestParseConditionReportsUnknownClauses(t *testing.T) {
	for _, src := range []string{
		"",
		"   ",
		"user.role matches 'adm.*'",
		"a = b",
		"clearance >= 3 AND hasRole('ADMIN')",
		"time IN morning",
		"client_ip IN ,",
	} {
		cond, err := parseCondition(src)
		if !errors.Is(err, ErrUnknownConditionClause) {
			t.Errorf("parseCondition(%q) err = %v, want ErrUnknownConditionClause", src, err)
		}
		if cond == nil {
			t.Errorf("parseCondition(%q) returned no condition", src)
		}
	}
}

func TestUnknownClauseHoldsAlone(t *testing.T) {
	tests := []struct {
		name  string
		cond  string
		attrs map[string]string
		want  bool
	}{
		{"known conjunct fails", "level >= 3 AND dept ~= 'x'", map[string]string{"level": "1"}, false},
		{"known conjunct holds", "level >= 3 AND dept ~= 'x'", map[string]string{"level": "3"}, true},
		{"function call beside failing threshold", "clearance >= 3 AND hasRole('ADMIN')", map[string]string{"clearance": "2"}, false},
		{"alternative of a false clause", "hasRole('ADMIN') OR false", nil, true},
		{"empty", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := parseCondition(tt.cond)
			if err == nil {
				t.Fatalf("parseCondition(%q) reported no unknown clause", tt.cond)
			}
			r := &resolver{attrs: tt.attrs, now: fixedClock(12, 0)()}
			if got := cond.eval(r); got != tt.want {
				t.Errorf("eval(%q) = %v, want %v", tt.cond, got, tt.want)
			}
		})
	}
}

func policyStore(t *testing.T, policies ...models.AbacPolicy) *catalog.MemoryStore {
	t.Helper()
	s := catalog.NewMemoryStore()
	for _, p := range policies {
		if err := s.PutPolicy(p); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestCheckPolicyNoPoliciesPasses(t *testing.T) {
	e := NewAbacEvaluator(policyStore(t))
	for _, attrs := range []map[string]string{nil, {}, {"clearance": "0", "client_ip": "203.0.113.9"}} {
		ok, err := e.CheckPolicy(context.Background(), "tenant-a", "reports", "export", attrs)
		if err != nil || !ok {
			t.Errorf("CheckPolicy(%v) = %v, %v; want true", attrs, ok, err)
		}
	}
}

func TestCheckPolicyIsDisjunction(t *testing.T) {
	e := NewAbacEvaluator(policyStore(t,
		models.AbacPolicy{ID: "a1", TenantID: "tenant-a", Resource: "docs", Action: "read", Condition: "false"},
		models.AbacPolicy{ID: "a2", TenantID: "tenant-a", Resource: "docs", Action: "read", Condition: "true"},
	))
	ok, err := e.CheckPolicy(context.Background(), "tenant-a", "docs", "read", nil)
	if err != nil || !ok {
		t.Errorf("CheckPolicy = %v, %v; want true", ok, err)
	}
}

func TestCheckPolicyAllFalseDenies(t *testing.T) {
	e := NewAbacEvaluator(policyStore(t,
		models.AbacPolicy{
			ID: "a1", TenantID: "tenant-a", Resource: "docs", Action: "read",
			Condition: "user.department == resource.department", Attributes: map[string]string{"department": "legal"},
		},
	))
	ok, err := e.CheckPolicy(context.Background(), "tenant-a", "docs", "read", map[string]string{"department": "sales"})
	if err != nil || ok {
		t.Errorf("CheckPolicy = %v, %v; want false", ok, err)
	}

	// Policies of another tenant do not apply.
	ok, _ = e.CheckPolicy(context.Background(), "tenant-b", "docs", "read", map[string]string{"department": "sales"})
	if !ok {
		t.Error("tenant-a policy applied to tenant-b")
	}
}

func TestCheckPolicyUnknownConditionPasses(t *testing.T) {
	e := NewAbacEvaluator(policyStore(t,
		models.AbacPolicy{ID: "a1", TenantID: "tenant-a", Resource: "docs", Action: "read", Condition: "hasRole('ADMIN')"},
	))
	before := testutil.ToFloat64(AbacUnknownClausesTotal.WithLabelValues("condition"))

	for i := 0; i < 2; i++ {
		ok, err := e.CheckPolicy(context.Background(), "tenant-a", "docs", "read", nil)
		if err != nil || !ok {
			t.Fatalf("CheckPolicy = %v, %v; want true", ok, err)
		}
	}

	if got := testutil.ToFloat64(AbacUnknownClausesTotal.WithLabelValues("condition")) - before; got != 2 {
		t.Errorf("unknown clause counter moved by %v, want 2", got)
	}
}

func TestCheckPolicyUnknownClauseKeepsKnownConjuncts(t *testing.T) {
	e := NewAbacEvaluator(policyStore(t,
		models.AbacPolicy{ID: "a1", TenantID: "tenant-a", Resource: "docs", Action: "read", Condition: "level >= 3 AND dept ~= 'x'"},
	))
	ctx := context.Background()
	before := testutil.ToFloat64(AbacUnknownClausesTotal.WithLabelValues("condition"))

	if ok, err := e.CheckPolicy(ctx, "tenant-a", "docs", "read", map[string]string{"level": "1"}); err != nil || ok {
		t.Errorf("level 1: CheckPolicy = %v, %v; want false", ok, err)
	}
	if ok, err := e.CheckPolicy(ctx, "tenant-a", "docs", "read", map[string]string{"level": "4"}); err != nil || !ok {
		t.Errorf("level 4: CheckPolicy = %v, %v; want true", ok, err)
	}
	if got := testutil.ToFloat64(AbacUnknownClausesTotal.WithLabelValues("condition")) - before; got != 2 {
		t.Errorf("unknown clause counter moved by %v, want 2", got)
	}
}

func TestCheckPolicyStoreFailure(t *testing.T) {
	fs := &faultyStore{MemoryStore: catalog.NewMemoryStore()}
	fs.policiesDown.Store(true)

	_, err := NewAbacEvaluator(fs).CheckPolicy(context.Background(), "tenant-a", "docs", "read", nil)
	if !errors.Is(err, ErrAbacLookup) {
		t.Fatalf("err = %v, want ErrAbacLookup", err)
	}
}

func TestCheckPolicyUsesClock(t *testing.T) {
	s := policyStore(t, models.AbacPolicy{
		ID: "hours", TenantID: "tenant-a", Resource: "orders", Action: "write", Condition: "time IN 08:00-18:00",
	})

	open, _ := NewAbacEvaluator(s, WithAbacClock(fixedClock(9, 0))).CheckPolicy(context.Background(), "tenant-a", "orders", "write", nil)
	closed, _ := NewAbacEvaluator(s, WithAbacClock(fixedClock(20, 0))).CheckPolicy(context.Background(), "tenant-a", "orders", "write", nil)
	if !open || closed {
		t.Errorf("open = %v, closed = %v", open, closed)
	}
}

func TestCheckConditions(t *testing.T) {
	tests := []struct {
		name  string
		conds map[string]any
		attrs map[string]string
		want  bool
	}{
		{"empty", nil, nil, true},
		{"scalar equality", map[string]any{"department": "sales"}, map[string]string{"department": "sales"}, true},
		{"scalar mismatch", map[string]any{"department": "sales"}, map[string]string{"department": "ops"}, false},
		{"numeric scalar", map[string]any{"level": float64(4)}, map[string]string{"level": "4"}, true},
		{"bool scalar", map[string]any{"mfa": true}, map[string]string{"mfa": "true"}, true},
		{"missing attribute", map[string]any{"department": "sales"}, map[string]string{}, false},
		{"$gte met", map[string]any{"clearance": map[string]any{"$gte": float64(3)}}, map[string]string{"clearance": "5"}, true},
		{"$gte unmet", map[string]any{"clearance": map[string]any{"$gte": float64(3)}}, map[string]string{"clearance": "2"}, false},
		{"$gt $lt range", map[string]any{"age": map[string]any{"$gt": float64(17), "$lt": float64(65)}}, map[string]string{"age": "30"}, true},
		{"$lte unmet", map[string]any{"risk": map[string]any{"$lte": 0.3}}, map[string]string{"risk": "0.9"}, false},
		{"non-numeric threshold", map[string]any{"clearance": map[string]any{"$gt": float64(1)}}, map[string]string{"clearance": "high"}, false},
		{"$in", map[string]any{"region": map[string]any{"$in": []any{"eu", "us"}}}, map[string]string{"region": "us"}, true},
		{"$in miss", map[string]any{"region": map[string]any{"$in": []any{"eu", "us"}}}, map[string]string{"region": "apac"}, false},
		{"$nin", map[string]any{"region": map[string]any{"$nin": []any{"embargoed"}}}, map[string]string{"region": "eu"}, true},
		{"$ne", map[string]any{"status": map[string]any{"$ne": "suspended"}}, map[string]string{"status": "suspended"}, false},
		{"$eq", map[string]any{"status": map[string]any{"$eq": "active"}}, map[string]string{"status": "active"}, true},
		{"unknown operator passes", map[string]any{"status": map[string]any{"$regex": "^act"}}, map[string]string{"status": "x"}, true},
		{"every key must hold", map[string]any{"a": "1", "b": "2"}, map[string]string{"a": "1", "b": "3"}, false},
	}

	e := NewAbacEvaluator(policyStore(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.CheckConditions(context.Background(), tt.conds, tt.attrs); got != tt.want {
				t.Errorf("CheckConditions = %v, want %v", got, tt.want)
			}
		})
	}
}
