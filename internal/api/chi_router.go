// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/tenantguard/internal/auth"
	"github.com/tomtom215/tenantguard/internal/authz"
	"github.com/tomtom215/tenantguard/internal/middleware"
)

// AdminRole is the role required for audit introspection on top of the
// admin rule set.
const AdminRole = "ADMIN"

// Router sets up HTTP routes using Chi router.
type Router struct {
	handler       *Handler
	sessions      *auth.Middleware
	engine        *authz.DecisionEngine
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. A nil chiMiddleware uses DefaultChiMiddlewareConfig.
func NewRouter(handler *Handler, sessions *auth.Middleware, engine *authz.DecisionEngine, chiMiddleware *ChiMiddleware) *Router {
	if chiMiddleware == nil {
		chiMiddleware = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		sessions:      sessions,
		engine:        engine,
		chiMiddleware: chiMiddleware,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Applied to ALL routes in order
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight is answered

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).NotFound("resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", router.handler.HealthLive)
	r.Get("/readyz", router.handler.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())

		// Credential exchange happens before any session exists
		r.With(router.chiMiddleware.RateLimitLogin()).Post("/auth/login", router.handler.Login)
		r.Post("/auth/refresh", router.handler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(router.sessions.Authenticate)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireSession)
				r.Post("/auth/logout", router.handler.Logout)
				r.Get("/auth/session", router.handler.Session)
				r.Post("/authz/check", router.handler.BatchCheck)
			})

			// Every admin request goes through the decision engine. A
			// missing session is a 403 here, never a 401.
			r.Route("/admin", func(r chi.Router) {
				r.Use(authz.NewMiddleware(router.engine).Intercept)
				r.Get("/me/permissions", router.handler.MyPermissions)
				r.Get("/rules", router.handler.Rules)
				r.With(authz.RequireRole(AdminRole)).Get("/audit/stats", router.handler.AuditStats)
			})
		})
	})

	return r
}
