// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package authz

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tomtom215/tenantguard/internal/auth"
	"github.com/tomtom215/tenantguard/internal/catalog"
	"github.com/tomtom215/tenantguard/internal/config"
	"github.com/tomtom215/tenantguard/internal/logging"
	"github.com/tomtom215/tenantguard/internal/models"
)

// Verdict is the outcome of a decision. Error is distinct from Deny so
// callers can tell a store failure from a refusal, but both must be
// treated as "not allowed".
type Verdict int

const (
	VerdictAllow Verdict = iota
	VerdictDeny
	VerdictError
)

func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictDeny:
		return "deny"
	default:
		return "error"
	}
}

// MarshalText renders the verdict by name in JSON.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Reason says which step produced the verdict.
type Reason string

const (
	ReasonNotAuthenticated Reason = "not_authenticated"
	ReasonOutOfScope       Reason = "out_of_scope"
	ReasonNoRule           Reason = "no_rule"
	ReasonInvalidRule      Reason = "invalid_rule"
	ReasonRbacDenied       Reason = "rbac_denied"
	ReasonAbacDenied       Reason = "abac_denied"
	ReasonConditionDenied  Reason = "condition_denied"
	ReasonGranted          Reason = "granted"
	ReasonLookupFailed     Reason = "lookup_failed"
)

// Decision is the result of Authorize.
type Decision struct {
	Verdict Verdict `json:"verdict"`
	Reason  Reason  `json:"reason"`

	// RuleID is the rule that mapped the path, if any.
	RuleID   string `json:"rule_id,omitempty"`
	Resource string `json:"resource,omitempty"`
	Action   string `json:"action,omitempty"`
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.Verdict == VerdictAllow
}

// Request is what the engine needs to know about an incoming call.
type Request struct {
	Path   string
	Method string

	// Attributes overlay the session's abacAttributes for ABAC evaluation,
	// typically client_ip and time.
	Attributes map[string]string
}

// DecisionEngine combines rule matching, RBAC and ABAC into a verdict.
//
// Steps, first match wins:
//  1. no session: Deny
//  2. path outside the protected prefix: Allow
//  3. no matching rule: the configured default
//  4. top rule's permission unparsable: Deny
//  5. RBAC does not grant resource:action: Deny
//  6. an ABAC policy or permission condition fails: Deny
//  7. Allow
//
// A store failure at any step yields VerdictError and the wrapped lookup error.
type DecisionEngine struct {
	matcher     *RuleMatcher
	rbac        *RbacResolver
	abac        *AbacEvaluator
	permissions catalog.PermissionReader

	protectedPrefix string
	defaultAllow    bool
	audit           *AuditLogger
}

// NewDecisionEngine wires the engine. permissions supplies the
// permission-level ABAC conditions checked after policies.
func NewDecisionEngine(
	matcher *RuleMatcher,
	rbac *RbacResolver,
	abac *AbacEvaluator,
	permissions catalog.PermissionReader,
	cfg config.AuthzConfig,
) *DecisionEngine {
	return &DecisionEngine{
		matcher:         matcher,
		rbac:            rbac,
		abac:            abac,
		permissions:     permissions,
		protectedPrefix: cfg.ProtectedPrefix,
		defaultAllow:    cfg.DefaultAllow(),
	}
}

// WithAuditLogger sends every decision to a.
func (e *DecisionEngine) WithAuditLogger(a *AuditLogger) *DecisionEngine {
	e.audit = a
	return e
}

// Rbac returns the engine's resolver.
func (e *DecisionEngine) Rbac() *RbacResolver {
	return e.rbac
}

// Matcher returns the engine's rule matcher.
func (e *DecisionEngine) Matcher() *RuleMatcher {
	return e.matcher
}

// Authorize decides whether the session in ctx may perform req.
func (e *DecisionEngine) Authorize(ctx context.Context, req Request) (Decision, error) {
	start := time.Now()
	sess := auth.SessionFromContext(ctx)
	attrs := requestAttributes(sess, req)

	d, err := e.decide(ctx, sess, req, attrs)
	e.finish(ctx, sess, req, attrs, d, err, time.Since(start))
	return d, err
}

func (e *DecisionEngine) decide(ctx context.Context, sess *auth.SessionContext, req Request, attrs map[string]string) (Decision, error) {
	if !sess.HasSession() {
		return Decision{Verdict: VerdictDeny, Reason: ReasonNotAuthenticated}, nil
	}
	if !strings.HasPrefix(req.Path, e.protectedPrefix) {
		return Decision{Verdict: VerdictAllow, Reason: ReasonOutOfScope}, nil
	}

	rules, err := e.matcher.Match(ctx, sess.TenantID(), req.Path, req.Method)
	if err != nil {
		return lookupFailed("rules", err)
	}
	if len(rules) == 0 {
		if e.defaultAllow {
			return Decision{Verdict: VerdictAllow, Reason: ReasonNoRule}, nil
		}
		return Decision{Verdict: VerdictDeny, Reason: ReasonNoRule}, nil
	}

	rule := rules[0]
	resource, action, err := models.ParsePermissionID(rule.Permission)
	if err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("rule_id", rule.ID).
			Str("tenant_id", sess.TenantID()).
			Msg("Permission rule has an invalid permission identifier")
		return Decision{Verdict: VerdictDeny, Reason: ReasonInvalidRule, RuleID: rule.ID}, nil
	}

	d, err := e.check(ctx, sess, resource, action, attrs, true)
	d.RuleID = rule.ID
	return d, err
}

// check runs the RBAC (optional) and ABAC steps for resource:action.
func (e *DecisionEngine) check(ctx context.Context, sess *auth.SessionContext, resource, action string, attrs map[string]string, withRbac bool) (Decision, error) {
	tenantID := sess.TenantID()
	deny := func(r Reason) (Decision, error) {
		return Decision{Verdict: VerdictDeny, Reason: r, Resource: resource, Action: action}, nil
	}

	if withRbac {
		ok, err := e.rbac.HasPermission(ctx, tenantID, sess.UserID(), resource, action)
		if err != nil {
			return lookupFailed("rbac", err)
		}
		if !ok {
			return deny(ReasonRbacDenied)
		}
	}

	ok, err := e.abac.CheckPolicy(ctx, tenantID, resource, action, attrs)
	if err != nil {
		return lookupFailed("abac", err)
	}
	if !ok {
		return deny(ReasonAbacDenied)
	}

	if e.permissions != nil {
		perm, err := e.permissions.PermissionByResourceAction(ctx, tenantID, resource, action)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
		case err != nil:
			return lookupFailed("conditions", err)
		case perm.HasConditions() && !e.abac.CheckConditions(ctx, perm.AbacConditions, attrs):
			return deny(ReasonConditionDenied)
		}
	}

	return Decision{Verdict: VerdictAllow, Reason: ReasonGranted, Resource: resource, Action: action}, nil
}

// AuthorizePermission checks a fixed "resource:action" identifier for the
// session in ctx: RBAC, then ABAC. No path rules are consulted.
func (e *DecisionEngine) AuthorizePermission(ctx context.Context, permissionID string, attrs map[string]string) (Decision, error) {
	start := time.Now()
	sess := auth.SessionFromContext(ctx)
	req := Request{Attributes: attrs}
	merged := requestAttributes(sess, req)

	var (
		d   Decision
		err error
	)
	resource, action, perr := models.ParsePermissionID(permissionID)
	switch {
	case !sess.HasSession():
		d = Decision{Verdict: VerdictDeny, Reason: ReasonNotAuthenticated}
	case perr != nil:
		d = Decision{Verdict: VerdictDeny, Reason: ReasonInvalidRule}
	default:
		d, err = e.check(ctx, sess, resource, action, merged, true)
	}

	e.finish(ctx, sess, req, merged, d, err, time.Since(start))
	return d, err
}

// AuthorizeAbac evaluates only the ABAC policies and permission conditions
// of resource:action for the session in ctx.
func (e *DecisionEngine) AuthorizeAbac(ctx context.Context, resource, action string, attrs map[string]string) (Decision, error) {
	start := time.Now()
	sess := auth.SessionFromContext(ctx)
	req := Request{Attributes: attrs}
	merged := requestAttributes(sess, req)

	var (
		d   Decision
		err error
	)
	if !sess.HasSession() {
		d = Decision{Verdict: VerdictDeny, Reason: ReasonNotAuthenticated}
	} else {
		d, err = e.check(ctx, sess, resource, action, merged, false)
	}

	e.finish(ctx, sess, req, merged, d, err, time.Since(start))
	return d, err
}

func lookupFailed(stage string, err error) (Decision, error) {
	RecordAuthzError(stage)
	return Decision{Verdict: VerdictError, Reason: ReasonLookupFailed}, err
}

// requestAttributes overlays request attributes on the session's claims.
// tenant_id and user_id always come from the session.
func requestAttributes(sess *auth.SessionContext, req Request) map[string]string {
	attrs := sess.AbacAttributes().Merge(req.Attributes)
	if req.Method != "" {
		attrs["method"] = req.Method
	}
	if req.Path != "" {
		attrs["path"] = req.Path
	}
	if sess.HasSession() {
		attrs["tenant_id"] = sess.TenantID()
		attrs["user_id"] = sess.UserID()
	}
	return attrs
}

func (e *DecisionEngine) finish(ctx context.Context, sess *auth.SessionContext, req Request, attrs map[string]string, d Decision, err error, took time.Duration) {
	RecordDecision(d, took)

	log := logging.Ctx(ctx)
	switch d.Verdict {
	case VerdictError:
		log.Error().
			Err(err).
			Str("tenant_id", sess.TenantID()).
			Str("user_id", sess.UserID()).
			Str("path", req.Path).
			Msg("Authorization failed on catalog lookup")
	case VerdictDeny:
		log.Info().
			Str("tenant_id", sess.TenantID()).
			Str("user_id", sess.UserID()).
			Str("path", req.Path).
			Str("method", req.Method).
			Str("rule_id", d.RuleID).
			Str("reason", string(d.Reason)).
			Msg("Authorization denied")
	default:
		log.Debug().
			Str("path", req.Path).
			Str("reason", string(d.Reason)).
			Dur("duration", took).
			Msg("Authorization allowed")
	}

	if e.audit != nil {
		e.audit.LogDecision(&AuditEvent{
			RequestID: logging.RequestIDFromContext(ctx),
			TenantID:  sess.TenantID(),
			UserID:    sess.UserID(),
			Path:      req.Path,
			Method:    req.Method,
			Resource:  d.Resource,
			Action:    d.Action,
			RuleID:    d.RuleID,
			Verdict:   d.Verdict,
			Reason:    d.Reason,
			Duration:  took,
			IPAddress: attrs["client_ip"],
		})
	}
}
