// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

// Package authz decides whether an authenticated request may proceed.
//
// # Architecture
//
//	Request -> Session Middleware -> Authz Middleware -> Handler
//	               |                       |
//	          decode token           DecisionEngine.Authorize
//	          (internal/auth)        (this package)
//
// The engine reads the catalog (internal/catalog) and never writes it:
//
//	RuleMatcher     path + method -> ordered PermissionRules (Ant patterns)
//	RbacResolver    user -> roles -> permissions, tenant scoped, optionally cached
//	AbacEvaluator   policy conditions and permission-level operator conditions
//	DecisionEngine  combines the three into Allow, Deny or Error
//
// # Rules
//
// A rule maps a path pattern to a permission identifier:
//
//	{"pattern": "/api/v1/admin/orders/**", "methods": ["GET"], "permission": "admin:orders:read", "priority": 10}
//
// "**" matches any number of path segments, "*" matches within one. When
// several rules match, the highest priority wins; ties go to the longer
// pattern, then to rules that name methods, then to the lower rule ID.
//
// # ABAC
//
// Policy conditions are short expressions over request and token attributes:
//
//	user.department == resource.department
//	clearance >= 3 AND time IN 08:00-18:00
//	client_ip IN 10.0.0.0/8, 192.168.1.7
//
// Permissions may additionally carry operator conditions:
//
//	{"clearance": {"$gte": 3}, "region": {"$in": ["eu", "us"]}}
//
// # Usage
//
//	rbac := authz.NewRbacResolver(store, authz.WithPermissionCache(authz.NewMemoryPermissionCache(time.Minute)))
//	engine := authz.NewDecisionEngine(authz.NewRuleMatcher(store), rbac, authz.NewAbacEvaluator(store), store, cfg.Authz)
//	r.Use(authz.NewMiddleware(engine).Intercept)
//
//	r.With(authz.RequirePermission(engine, "orders:read")).Get("/orders", h)
//	r.With(authz.RequireRole("ADMIN")).Get("/audit/stats", h)
//
// # Failure Handling
//
// Store failures produce VerdictError together with ErrRuleLookup,
// ErrRbacLookup or ErrAbacLookup. The HTTP layer answers Deny and Error with
// the same 403 body.
package authz
