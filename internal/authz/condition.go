// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package authz

import (
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownConditionClause marks a clause outside the supported set. It is
// logged and counted, never returned from CheckPolicy.
var ErrUnknownConditionClause = errors.New("authz: unknown condition clause")

// A condition is a conjunction of disjunctions of clauses:
//
//	clause AND clause OR clause
//
// OR binds tighter than AND, so the line above reads
// clause AND (clause OR clause). Keywords, separators and operators inside
// quoted literals are part of the literal. Supported clauses:
//
//	a == b, a != b              equality; operands are references, 'quoted' literals or numbers
//	a >= 3, a > b, a < 10, ...  numeric or HH:MM threshold
//	time IN 22:00-06:00         time-of-day window, may wrap midnight
//	client_ip IN 10.0.0.1, 192.168.0.0/24
//	                            membership; items may be addresses, CIDR prefixes or plain values
//	true, false
//
// Any other clause holds.
type condition struct {
	all [][]clause
}

type clause interface {
	eval(r *resolver) bool
}

// resolver looks up references for one evaluation.
type resolver struct {
	attrs  map[string]string
	policy map[string]string
	now    time.Time
}

// lookup resolves a reference: the exact context key first; "user.x" falls
// back to context "x"; "resource.x" falls back to the policy's "x" and then
// "resource.x" attributes.
func (r *resolver) lookup(ref string) (string, bool) {
	if v, ok := r.attrs[ref]; ok {
		return v, true
	}
	if key, ok := strings.CutPrefix(ref, "user."); ok {
		v, ok := r.attrs[key]
		return v, ok
	}
	if key, ok := strings.CutPrefix(ref, "resource."); ok {
		if v, ok := r.policy[key]; ok {
			return v, true
		}
		v, ok := r.policy[ref]
		return v, ok
	}
	return "", false
}

// timeOfDay returns minutes since midnight for the "time" reference,
// falling back to the evaluator clock when the context has none.
func (r *resolver) timeOfDay() (int, bool) {
	if v, ok := r.attrs["time"]; ok {
		return parseTimeOfDay(v)
	}
	return r.now.Hour()*60 + r.now.Minute(), true
}

var (
	orSplit    = regexp.MustCompile(`(?i)\s+OR\s+`)
	andSplit   = regexp.MustCompile(`(?i)\s+AND\s+`)
	commaSplit = regexp.MustCompile(`,`)
	inSplit    = regexp.MustCompile(`(?i)^(\S+)\s+IN\s+(.+)$`)
	refRe      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)
	hhmmRe     = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)
)

// comparison operators, longest first so ">=" is not read as ">".
var compareOps = []string{"==", "!=", ">=", "<=", ">", "<"}

// parseCondition parses src. The condition is always usable: a clause it
// does not recognize becomes a passClause, and the returned error, wrapping
// ErrUnknownConditionClause, names every such clause.
func parseCondition(src string) (*condition, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return &condition{all: [][]clause{{passClause{}}}}, fmt.Errorf("%w: empty condition", ErrUnknownConditionClause)
	}

	c := &condition{}
	var errs []error
	for _, conjunct := range splitUnquoted(src, andSplit) {
		var anyOf []clause
		for _, part := range splitUnquoted(conjunct, orSplit) {
			cl, err := parseClause(strings.TrimSpace(part))
			if err != nil {
				errs = append(errs, err)
				cl = passClause{}
			}
			anyOf = append(anyOf, cl)
		}
		c.all = append(c.all, anyOf)
	}
	return c, errors.Join(errs...)
}

func (c *condition) eval(r *resolver) bool {
	for _, anyOf := range c.all {
		ok := false
		for _, cl := range anyOf {
			if cl.eval(r) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// maskQuoted returns s with the bytes inside '...' and "..." literals
// replaced by '_', so offsets into the result are offsets into s. An
// unterminated literal runs to the end.
func maskQuoted(s string) string {
	b := []byte(s)
	var quote byte
	for i, c := range b {
		switch {
		case quote != 0 && c == quote:
			quote = 0
		case quote != 0:
			b[i] = '_'
		case c == '\'' || c == '"':
			quote = c
		}
	}
	return string(b)
}

// splitUnquoted splits s around the matches of sep outside quoted literals.
func splitUnquoted(s string, sep *regexp.Regexp) []string {
	var parts []string
	start := 0
	for _, loc := range sep.FindAllStringIndex(maskQuoted(s), -1) {
		parts = append(parts, s[start:loc[0]])
		start = loc[1]
	}
	return append(parts, s[start:])
}

func parseClause(s string) (clause, error) {
	switch strings.ToLower(s) {
	case "true":
		return constClause(true), nil
	case "false":
		return constClause(false), nil
	}

	masked := maskQuoted(s)
	if m := inSplit.FindStringSubmatchIndex(masked); m != nil {
		return parseInClause(s[m[2]:m[3]], s[m[4]:m[5]])
	}

	for _, op := range compareOps {
		i := strings.Index(masked, op)
		if i < 0 {
			continue
		}
		l, err := parseOperand(s[:i])
		if err != nil {
			return nil, err
		}
		r, err := parseOperand(s[i+len(op):])
		if err != nil {
			return nil, err
		}
		return &compareClause{op: op, left: l, right: r}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownConditionClause, s)
}

type constClause bool

func (c constClause) eval(*resolver) bool { return bool(c) }

// passClause stands in for an unrecognized clause.
type passClause struct{}

func (passClause) eval(*resolver) bool { return true }

// operand is a reference or a literal.
type operand struct {
	ref     string
	literal string
}

func (o operand) value(r *resolver) (string, bool) {
	if o.ref == "" {
		return o.literal, true
	}
	if o.ref == "time" {
		if _, ok := r.attrs["time"]; !ok {
			return fmt.Sprintf("%02d:%02d", r.now.Hour(), r.now.Minute()), true
		}
	}
	return r.lookup(o.ref)
}

func parseOperand(s string) (operand, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0]:
		return operand{literal: s[1 : len(s)-1]}, nil
	case isNumber(s), hhmmRe.MatchString(s):
		return operand{literal: s}, nil
	case refRe.MatchString(s):
		return operand{ref: s}, nil
	}
	return operand{}, fmt.Errorf("%w: operand %q", ErrUnknownConditionClause, s)
}

type compareClause struct {
	op          string
	left, right operand
}

func (c *compareClause) eval(r *resolver) bool {
	lv, ok := c.left.value(r)
	if !ok {
		return false
	}
	rv, ok := c.right.value(r)
	if !ok {
		return false
	}

	switch c.op {
	case "==":
		return valuesEqual(lv, rv)
	case "!=":
		return !valuesEqual(lv, rv)
	}

	cmp, ok := compareOrdered(lv, rv)
	if !ok {
		return false
	}
	switch c.op {
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	default:
		return cmp < 0
	}
}

// valuesEqual compares numerically when both sides are numbers, so "3" == "3.0".
func valuesEqual(a, b string) bool {
	if fa, err := strconv.ParseFloat(a, 64); err == nil {
		if fb, err := strconv.ParseFloat(b, 64); err == nil {
			return fa == fb
		}
	}
	return a == b
}

// compareOrdered compares two numbers or two times of day.
func compareOrdered(a, b string) (int, bool) {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}

	ta, okA := parseTimeOfDay(a)
	tb, okB := parseTimeOfDay(b)
	if okA && okB {
		return ta - tb, true
	}
	return 0, false
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// parseTimeOfDay accepts HH:MM, HH:MM:SS or an RFC 3339 timestamp and
// returns minutes since midnight.
func parseTimeOfDay(s string) (int, bool) {
	if m := hhmmRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		return h*60 + mins, true
	}
	if t, err := time.Parse(time.TimeOnly, s); err == nil {
		return t.Hour()*60 + t.Minute(), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Hour()*60 + t.Minute(), true
	}
	return 0, false
}

// windowClause is "time IN HH:MM-HH:MM", inclusive at both ends. A window
// whose start is after its end wraps midnight.
type windowClause struct {
	start, end int
}

func (w *windowClause) eval(r *resolver) bool {
	t, ok := r.timeOfDay()
	if !ok {
		return false
	}
	if w.start <= w.end {
		return t >= w.start && t <= w.end
	}
	return t >= w.start || t <= w.end
}

// memberClause is "ref IN a, b, c".
type memberClause struct {
	ref      string
	prefixes []netip.Prefix
	values   []string
}

func (m *memberClause) eval(r *resolver) bool {
	v, ok := r.lookup(m.ref)
	if !ok {
		return false
	}
	if addr, err := netip.ParseAddr(v); err == nil {
		addr = addr.Unmap()
		for _, p := range m.prefixes {
			if p.Contains(addr) {
				return true
			}
		}
	}
	for _, want := range m.values {
		if v == want {
			return true
		}
	}
	return false
}

func parseInClause(ref, list string) (clause, error) {
	if !refRe.MatchString(ref) {
		return nil, fmt.Errorf("%w: IN target %q", ErrUnknownConditionClause, ref)
	}

	if ref == "time" {
		from, to, ok := strings.Cut(strings.TrimSpace(list), "-")
		start, okStart := parseTimeOfDay(strings.TrimSpace(from))
		end, okEnd := parseTimeOfDay(strings.TrimSpace(to))
		if !ok || !okStart || !okEnd {
			return nil, fmt.Errorf("%w: time window %q", ErrUnknownConditionClause, list)
		}
		return &windowClause{start: start, end: end}, nil
	}

	m := &memberClause{ref: ref}
	for _, item := range splitUnquoted(list, commaSplit) {
		item = strings.Trim(strings.TrimSpace(item), `'"`)
		if item == "" {
			continue
		}
		if p, err := netip.ParsePrefix(item); err == nil {
			m.prefixes = append(m.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(item); err == nil {
			a = a.Unmap()
			m.prefixes = append(m.prefixes, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		m.values = append(m.values, item)
	}
	if len(m.prefixes) == 0 && len(m.values) == 0 {
		return nil, fmt.Errorf("%w: empty IN list", ErrUnknownConditionClause)
	}
	return m, nil
}
