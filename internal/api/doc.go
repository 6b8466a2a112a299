// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

/*
Package api provides the HTTP surface of Tenantguard.

Routes:

	GET  /healthz                     liveness
	GET  /readyz                      readiness of registered dependencies
	GET  /metrics                     Prometheus exposition

	POST /api/v1/auth/login           credentials -> token pair (login rate limit)
	POST /api/v1/auth/refresh         refresh token -> rotated token pair
	POST /api/v1/auth/logout          revoke access (and optional refresh) token
	GET  /api/v1/auth/session         caller's session
	POST /api/v1/authz/check          batch RBAC check

	GET  /api/v1/admin/me/permissions catalog roles and permissions of the caller
	GET  /api/v1/admin/rules          tenant permission rules in match order
	GET  /api/v1/admin/audit/stats    audit counters (ADMIN role)

Everything under /api/v1/admin passes through the decision engine
(authz.Middleware.Intercept). A denied or failed decision always produces the
same 403 body, whether the caller is anonymous, unprivileged or hit a store
outage.

Middleware order (outermost first): request ID, real IP, panic recovery,
Prometheus metrics, CORS; then per-IP rate limiting and security headers for
/api/v1; then bearer authentication for session routes.

Responses other than the 403 from the decision engine use the APIResponse
envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "INVALID_TOKEN", "message": "..."}}
*/
package api
