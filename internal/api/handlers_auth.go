// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/tenantguard/internal/auth"
	"github.com/tomtom215/tenantguard/internal/logging"
	"github.com/tomtom215/tenantguard/internal/models"
)

// SessionView is the caller's view of its own session.
type SessionView struct {
	UserID         string            `json:"user_id"`
	TenantID       string            `json:"tenant_id"`
	ClientID       string            `json:"client_id,omitempty"`
	TokenType      models.TokenType  `json:"token_type"`
	ExpiresAt      time.Time         `json:"expires_at"`
	Roles          []string          `json:"roles"`
	Permissions    []string          `json:"permissions"`
	AbacAttributes map[string]string `json:"abac_attributes,omitempty"`
}

// Login exchanges tenant credentials for a token pair.
//
// Method: POST
// Path: /api/v1/auth/login
//
// Unknown users, wrong passwords and disabled accounts all produce the same
// 401 INVALID_CREDENTIALS response.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !bindJSON(w, r, &req) {
		return
	}

	rw := NewResponseWriter(w, r)
	pair, err := h.issuer.Login(r.Context(), req, auth.ClientIP(r))
	switch {
	case err == nil:
		rw.Success(pair)
	case errors.Is(err, auth.ErrInvalidCredentials):
		rw.Unauthorized(ErrCodeInvalidCredentials, "invalid credentials")
	case errors.Is(err, auth.ErrCredentialLookup):
		logging.Ctx(r.Context()).Error().Err(err).Str("tenant_id", req.TenantID).Msg("Login failed: credential store unavailable")
		rw.ServiceUnavailable("credential store unavailable")
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("tenant_id", req.TenantID).Msg("Login failed")
		rw.InternalError("login failed")
	}
}

// Refresh rotates a refresh token into a new token pair.
//
// Method: POST
// Path: /api/v1/auth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req auth.RefreshRequest
	if !bindJSON(w, r, &req) {
		return
	}

	rw := NewResponseWriter(w, r)
	pair, err := h.issuer.Refresh(r.Context(), req.RefreshToken)
	switch {
	case err == nil:
		rw.Success(pair)
	case errors.Is(err, auth.ErrCredentialLookup):
		logging.Ctx(r.Context()).Error().Err(err).Msg("Refresh failed: credential store unavailable")
		rw.ServiceUnavailable("credential store unavailable")
	case isTokenRejection(err):
		rw.Unauthorized(ErrCodeInvalidToken, "refresh token rejected")
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Refresh failed")
		rw.ServiceUnavailable("token revocation check failed")
	}
}

// isTokenRejection reports whether err means the presented token itself is
// unusable, as opposed to a backend failure.
func isTokenRejection(err error) bool {
	var decodeErr *auth.DecodeError
	return errors.As(err, &decodeErr) ||
		errors.Is(err, auth.ErrInvalidCredentials) ||
		errors.Is(err, auth.ErrNotRefreshToken) ||
		errors.Is(err, auth.ErrTokenRevoked)
}

// Logout revokes the caller's access token and, when the optional body names
// one, its refresh token.
//
// Method: POST
// Path: /api/v1/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := readJSON(w, r, &req); err != nil && !errors.Is(err, ErrEmptyBody) {
		if errors.Is(err, ErrBodyTooLarge) {
			WriteError(w, r, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		WriteError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "request body is not valid JSON")
		return
	}

	rw := NewResponseWriter(w, r)
	err := h.issuer.Logout(r.Context(), auth.SessionFromContext(r.Context()), req.RefreshToken)
	switch {
	case err == nil:
		rw.NoContent()
	case errors.Is(err, auth.ErrTenantMismatch):
		rw.Error(http.StatusForbidden, ErrCodeTenantMismatch, "refresh token belongs to another session")
	case errors.Is(err, auth.ErrMissingIdentity):
		rw.Unauthorized(ErrCodeUnauthorized, "authentication required")
	case isTokenRejection(err):
		rw.BadRequest("refresh token is not valid")
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Logout failed")
		rw.ServiceUnavailable("token revocation failed")
	}
}

// Session returns the authenticated caller's session.
//
// Method: GET
// Path: /api/v1/auth/session
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	NewResponseWriter(w, r).Success(SessionView{
		UserID:         sess.UserID(),
		TenantID:       sess.TenantID(),
		ClientID:       sess.ClientID(),
		TokenType:      sess.TokenType(),
		ExpiresAt:      sess.ExpiresAt(),
		Roles:          sess.Roles(),
		Permissions:    sess.Permissions(),
		AbacAttributes: sess.AbacAttributes(),
	})
}
