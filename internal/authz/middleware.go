// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package authz

import (
	"net/http"

	"github.com/tomtom215/tenantguard/internal/auth"
	"github.com/tomtom215/tenantguard/internal/logging"
)

// forbiddenBody is sent for every Deny and Error so a client cannot tell
// which step refused it.
var forbiddenBody = []byte(`{"success":false,"error":{"code":"FORBIDDEN","message":"access denied"}}` + "\n")

// WriteForbidden writes the 403 response.
func WriteForbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	if _, err := w.Write(forbiddenBody); err != nil {
		logging.Debug().Err(err).Msg("Failed to write forbidden response")
	}
}

// RequestAttributes are the ABAC attributes taken from the HTTP request.
func RequestAttributes(r *http.Request) map[string]string {
	return map[string]string{"client_ip": auth.ClientIP(r)}
}

// Middleware runs the decision engine against every request path.
type Middleware struct {
	engine *DecisionEngine
}

// NewMiddleware creates the path interceptor. Mount it behind the session
// middleware.
func NewMiddleware(engine *DecisionEngine) *Middleware {
	return &Middleware{engine: engine}
}

// Intercept is chi-compatible middleware.
func (m *Middleware) Intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, _ := m.engine.Authorize(r.Context(), Request{
			Path:       r.URL.Path,
			Method:     r.Method,
			Attributes: RequestAttributes(r),
		})
		if !d.Allowed() {
			WriteForbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission allows the request only when the caller holds
// permissionID ("resource:action") and its ABAC checks pass.
func RequirePermission(engine *DecisionEngine, permissionID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, _ := engine.AuthorizePermission(r.Context(), permissionID, RequestAttributes(r))
			if !d.Allowed() {
				WriteForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole allows the request when the session's token carries any of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := auth.SessionFromContext(r.Context())
			if !sess.HasAnyRole(roles...) {
				logging.Ctx(r.Context()).Info().
					Str("user_id", sess.UserID()).
					Strs("required_roles", roles).
					Msg("Role check denied")
				WriteForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAbac allows the request when the ABAC policies and permission
// conditions for resource:action hold. Role ownership is not checked.
func RequireAbac(engine *DecisionEngine, resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, _ := engine.AuthorizeAbac(r.Context(), resource, action, RequestAttributes(r))
			if !d.Allowed() {
				WriteForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
