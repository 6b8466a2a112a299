// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

/*
Package middleware provides infrastructure HTTP middleware shared by every
route: request ids and Prometheus instrumentation.

Authentication lives in internal/auth and authorization in internal/authz;
both are mounted by internal/api after these two.

Middleware Stack:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)         // X-Request-ID, logging context
	r.Use(middleware.PrometheusMetrics) // tenantguard_http_* metrics
	r.Use(sessions.Authenticate)        // auth.Middleware
	r.Use(authz.NewMiddleware(engine).Intercept)

Request ID:

An X-Request-ID from an upstream proxy is kept when it is short printable
ASCII, otherwise a UUID is generated. The id is echoed in the response and
stored with logging.ContextWithRequestID, so logging.Ctx(ctx) and the authz
audit log carry it.

Prometheus Metrics:

The route label is chi's matched route pattern (for example
"/api/v1/admin/rules"), never the raw path. Requests that match no route are
labelled "unmatched".

See Also:

  - internal/metrics: metric definitions
  - internal/api: router that mounts this package
*/
package middleware
