// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package api

import (
	"net/http"

	"github.com/tomtom215/tenantguard/internal/auth"
	"github.com/tomtom215/tenantguard/internal/logging"
	"github.com/tomtom215/tenantguard/internal/models"
)

// MyPermissionsResponse lists what the catalog currently grants the caller.
// It can differ from the token's claims until the token is refreshed.
type MyPermissionsResponse struct {
	Roles       []models.Role       `json:"roles"`
	Permissions []models.Permission `json:"permissions"`
}

// BatchCheck answers RBAC ownership for several permissions at once.
//
// Method: POST
// Path: /api/v1/authz/check
func (h *Handler) BatchCheck(w http.ResponseWriter, r *http.Request) {
	var req BatchCheckRequest
	if !bindJSON(w, r, &req) {
		return
	}

	sess := auth.SessionFromContext(r.Context())
	results, err := h.engine.Rbac().BatchHasPermission(r.Context(), sess.TenantID(), sess.UserID(), req.Permissions)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("tenant_id", sess.TenantID()).Msg("Batch permission check failed")
		NewResponseWriter(w, r).ServiceUnavailable("permission store unavailable")
		return
	}
	NewResponseWriter(w, r).Success(BatchCheckResponse{Results: results})
}

// MyPermissions returns the caller's roles and permissions as resolved from
// the catalog.
//
// Method: GET
// Path: /api/v1/admin/me/permissions
func (h *Handler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	rbac := h.engine.Rbac()

	roles, err := rbac.GetUserRoles(r.Context(), sess.TenantID(), sess.UserID())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to resolve user roles")
		NewResponseWriter(w, r).ServiceUnavailable("permission store unavailable")
		return
	}
	perms, err := rbac.GetUserPermissions(r.Context(), sess.TenantID(), sess.UserID())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to resolve user permissions")
		NewResponseWriter(w, r).ServiceUnavailable("permission store unavailable")
		return
	}

	NewResponseWriter(w, r).Success(MyPermissionsResponse{Roles: roles, Permissions: perms})
}

// Rules lists the caller's tenant rules in match order.
//
// Method: GET
// Path: /api/v1/admin/rules
func (h *Handler) Rules(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	rules, err := h.engine.Matcher().Rules(r.Context(), sess.TenantID())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to list rules")
		NewResponseWriter(w, r).ServiceUnavailable("rule store unavailable")
		return
	}
	NewResponseWriter(w, r).SuccessList(rules, len(rules))
}

// AuditStats reports decision audit counters.
//
// Method: GET
// Path: /api/v1/admin/audit/stats
func (h *Handler) AuditStats(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.audit.Stats())
}
