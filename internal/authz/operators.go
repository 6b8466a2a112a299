// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package authz

import (
	"strconv"
)

// Operators accepted in permission-level AbacConditions, e.g.
//
//	{"department": "sales", "clearance": {"$gte": 3}, "region": {"$in": ["eu", "us"]}}
const (
	opEq  = "$eq"
	opNe  = "$ne"
	opIn  = "$in"
	opNin = "$nin"
	opGt  = "$gt"
	opGte = "$gte"
	opLt  = "$lt"
	opLte = "$lte"
)

// operatorResult is the outcome of one operator: held, or unknown.
type operatorResult int

const (
	opFailed operatorResult = iota
	opHeld
	opUnknown
)

// evalOperator applies op to the attribute value v.
func evalOperator(op string, v string, want any) operatorResult {
	switch op {
	case opEq:
		return held(scalarEqual(v, want))
	case opNe:
		return held(!scalarEqual(v, want))
	case opIn:
		return held(containsScalar(v, want))
	case opNin:
		return held(!containsScalar(v, want))
	case opGt, opGte, opLt, opLte:
		a, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opFailed
		}
		b, ok := toFloat(want)
		if !ok {
			return opFailed
		}
		switch op {
		case opGt:
			return held(a > b)
		case opGte:
			return held(a >= b)
		case opLt:
			return held(a < b)
		default:
			return held(a <= b)
		}
	}
	return opUnknown
}

func held(ok bool) operatorResult {
	if ok {
		return opHeld
	}
	return opFailed
}

// scalarEqual compares an attribute string against a JSON scalar.
func scalarEqual(v string, want any) bool {
	switch w := want.(type) {
	case string:
		return v == w
	case bool:
		b, err := strconv.ParseBool(v)
		return err == nil && b == w
	case nil:
		return false
	}
	if f, ok := toFloat(want); ok {
		a, err := strconv.ParseFloat(v, 64)
		return err == nil && a == f
	}
	return false
}

func containsScalar(v string, list any) bool {
	items, ok := list.([]any)
	if !ok {
		return scalarEqual(v, list)
	}
	for _, item := range items {
		if scalarEqual(v, item) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
