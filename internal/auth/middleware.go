// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package auth

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tenantguard/internal/config"
	"github.com/tomtom215/tenantguard/internal/logging"
	"github.com/tomtom215/tenantguard/internal/models"
)

const bearerPrefix = "Bearer "

// Middleware turns a bearer token into a SessionContext on the request.
//
// Order of checks: token present, decode (signature, issuer, expiry),
// token type is ACCESS, not revoked, tenant header matches. A request that
// passes all of them carries a session; one that fails is rejected, or with
// RequireAuth off and no usable token, continues anonymously.
type Middleware struct {
	codec        *TokenCodec
	blacklist    Blacklist
	requireAuth  bool
	tenantHeader string
	security     *logging.SecurityLogger
}

// NewMiddleware creates the session middleware. blacklist may be nil.
func NewMiddleware(codec *TokenCodec, blacklist Blacklist, cfg config.SecurityConfig) *Middleware {
	return &Middleware{
		codec:        codec,
		blacklist:    blacklist,
		requireAuth:  cfg.RequireAuth,
		tenantHeader: cfg.TenantHeader,
		security:     logging.NewSecurityLogger(),
	}
}

// Authenticate is chi-compatible middleware.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if m.requireAuth {
				writeUnauthorized(w, "", "authentication required")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.codec.Decode(token)
		if err != nil {
			result := decodeResult(err)
			TokenDecodeTotal.WithLabelValues(result).Inc()
			m.security.LogTokenRejected(ClientIP(r), result)
			if !m.requireAuth {
				next.ServeHTTP(w, r)
				return
			}
			if errors.Is(err, ErrTokenExpired) {
				writeUnauthorized(w, "token expired", "token expired")
			} else {
				writeUnauthorized(w, "invalid token", "invalid token")
			}
			return
		}
		TokenDecodeTotal.WithLabelValues("ok").Inc()

		if claims.TokenType != models.TokenAccess {
			m.security.LogTokenRejected(ClientIP(r), "refresh_token_used_for_access")
			writeUnauthorized(w, "access token required", "access token required")
			return
		}

		if m.blacklist != nil {
			revoked, err := m.blacklist.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).Msg("Token revocation check failed")
				writeAuthError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "authentication temporarily unavailable")
				return
			}
			if revoked {
				m.security.LogTokenRejected(ClientIP(r), "revoked")
				writeUnauthorized(w, "token revoked", "token revoked")
				return
			}
		}

		if m.tenantHeader != "" {
			if header := r.Header.Get(m.tenantHeader); header != "" && header != claims.TenantID {
				m.security.LogTenantMismatch(claims.TenantID, header, claims.Subject)
				writeAuthError(w, http.StatusForbidden, "TENANT_MISMATCH", "tenant header does not match token")
				return
			}
		}

		sess := NewSessionContext(claims)
		ctx := WithSession(r.Context(), sess)
		logger := logging.LoggerFromContext(ctx).With().
			Str("tenant_id", sess.TenantID()).
			Str("user_id", sess.UserID()).
			Logger()
		ctx = logging.ContextWithLogger(ctx, logger)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession rejects requests that reached it without a session. Use it
// on routes that need an identity even when RequireAuth is off.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !SessionFromContext(r.Context()).HasSession() {
			writeUnauthorized(w, "", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(h[len(bearerPrefix):])
}

// ClientIP returns the request's remote address without the port. Proxy
// headers are honoured only through chi's RealIP middleware upstream.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type authErrorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	var body authErrorBody
	body.Error.Code = code
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Failed to write auth error response")
	}
}

// writeUnauthorized sends 401 with an RFC 6750 challenge. description is
// omitted from the challenge when empty.
func writeUnauthorized(w http.ResponseWriter, description, message string) {
	challenge := `Bearer realm="tenantguard"`
	if description != "" {
		challenge += `, error="invalid_token", error_description="` + description + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}
