// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/tenantguard/internal/catalog"
	"github.com/tomtom215/tenantguard/internal/logging"
	"github.com/tomtom215/tenantguard/internal/models"
)

var (
	// ErrInvalidCredentials covers unknown users, wrong passwords and
	// disabled accounts alike so callers cannot tell them apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrNotRefreshToken = errors.New("token is not a refresh token")
	ErrTokenRevoked    = errors.New("token has been revoked")
	ErrTenantMismatch  = errors.New("token belongs to another tenant or user")

	// ErrCredentialLookup wraps catalog failures during login or refresh.
	ErrCredentialLookup = errors.New("credential lookup failed")
)

// GrantResolver computes the roles and effective permission identifiers a
// user holds in a tenant. The authz RBAC resolver implements it.
type GrantResolver interface {
	ResolveGrants(ctx context.Context, tenantID, userID string) (roles, permissions []string, err error)
}

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	TenantID string `json:"tenant_id" validate:"required,max=128"`
	Username string `json:"username" validate:"required,max=256"`
	Password string `json:"password" validate:"required,max=1024"`
	ClientID string `json:"client_id,omitempty" validate:"max=128"`
}

// RefreshRequest is the body of POST /api/v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Issuer runs the login, refresh and logout flows.
type Issuer struct {
	users     catalog.UserReader
	grants    GrantResolver
	codec     *TokenCodec
	blacklist Blacklist
	security  *logging.SecurityLogger
}

// NewIssuer wires the flows. blacklist may be nil, in which case logout and
// refresh rotation are no-ops.
func NewIssuer(users catalog.UserReader, grants GrantResolver, codec *TokenCodec, blacklist Blacklist) *Issuer {
	return &Issuer{
		users:     users,
		grants:    grants,
		codec:     codec,
		blacklist: blacklist,
		security:  logging.NewSecurityLogger(),
	}
}

// WithSecurityLogger replaces the security logger, mainly for tests.
func (i *Issuer) WithSecurityLogger(l *logging.SecurityLogger) *Issuer {
	i.security = l
	return i
}

var (
	dummyHash     []byte
	dummyHashOnce sync.Once
)

// compareDummy burns the same bcrypt work as a real comparison so unknown
// usernames take as long as wrong passwords.
func compareDummy(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("tenantguard-unknown-user"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// Login checks credentials and issues a token pair whose access token
// carries the user's current roles, permissions and attributes.
func (i *Issuer) Login(ctx context.Context, req LoginRequest, ip string) (*TokenPair, error) {
	user, err := i.users.UserByUsername(ctx, req.TenantID, req.Username)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		compareDummy(req.Password)
		i.loginFailed(req, ip, "unknown_user")
		return nil, ErrInvalidCredentials
	case err != nil:
		LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrCredentialLookup, err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		i.loginFailed(req, ip, "bad_password")
		return nil, ErrInvalidCredentials
	}
	if !user.Enabled {
		i.loginFailed(req, ip, "disabled")
		return nil, ErrInvalidCredentials
	}

	pair, err := i.issue(ctx, user.Principal(req.ClientID), user.Attributes, "login")
	if err != nil {
		LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	LoginAttemptsTotal.WithLabelValues("success").Inc()
	i.security.LogLoginSuccess(user.TenantID, user.ID, user.Username, ip)
	return pair, nil
}

func (i *Issuer) loginFailed(req LoginRequest, ip, reason string) {
	LoginAttemptsTotal.WithLabelValues(reason).Inc()
	i.security.LogLoginFailure(req.TenantID, req.Username, ip, reason)
}

// Refresh exchanges a valid, unrevoked refresh token for a new pair. Grants
// are re-resolved from the catalog and the old refresh token is revoked.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := i.codec.Decode(refreshToken)
	if err != nil {
		TokenDecodeTotal.WithLabelValues(decodeResult(err)).Inc()
		i.security.LogTokenRefresh("", "", false, decodeResult(err))
		return nil, err
	}
	if claims.TokenType != models.TokenRefresh {
		i.security.LogTokenRefresh(claims.TenantID, claims.Subject, false, "not_refresh_token")
		return nil, ErrNotRefreshToken
	}

	if i.blacklist != nil {
		revoked, err := i.blacklist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check revocation: %w", err)
		}
		if revoked {
			i.security.LogTokenRefresh(claims.TenantID, claims.Subject, false, "revoked")
			return nil, ErrTokenRevoked
		}
	}

	user, err := i.users.UserByID(ctx, claims.TenantID, claims.Subject)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		i.security.LogTokenRefresh(claims.TenantID, claims.Subject, false, "unknown_user")
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrCredentialLookup, err)
	case !user.Enabled:
		i.security.LogTokenRefresh(claims.TenantID, claims.Subject, false, "disabled")
		return nil, ErrInvalidCredentials
	}

	pair, err := i.issue(ctx, claims.Principal(), user.Attributes, "refresh")
	if err != nil {
		return nil, err
	}

	if i.blacklist != nil && claims.ExpiresAt != nil {
		if err := i.blacklist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			// The new pair is valid; a failed rotation only leaves the old
			// refresh token usable until it expires.
			logging.Ctx(ctx).Warn().Err(err).Str("jti", logging.SanitizeToken(claims.ID)).Msg("Failed to revoke rotated refresh token")
		}
	}

	i.security.LogTokenRefresh(claims.TenantID, claims.Subject, true, "")
	return pair, nil
}

// Logout revokes the session's access token and, when given, a refresh
// token belonging to the same user and tenant.
func (i *Issuer) Logout(ctx context.Context, sess *SessionContext, refreshToken string) error {
	if !sess.HasSession() {
		return ErrMissingIdentity
	}
	if i.blacklist == nil {
		return nil
	}

	if err := i.blacklist.Revoke(ctx, sess.TokenID(), sess.ExpiresAt()); err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}

	if refreshToken != "" {
		claims, err := i.codec.Decode(refreshToken)
		switch {
		case errors.Is(err, ErrTokenExpired):
			// Already unusable.
		case err != nil:
			return err
		case claims.Subject != sess.UserID() || claims.TenantID != sess.TenantID():
			return ErrTenantMismatch
		case claims.ExpiresAt != nil:
			if err := i.blacklist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
				return fmt.Errorf("failed to revoke refresh token: %w", err)
			}
		}
	}

	i.security.LogLogout(sess.TenantID(), sess.UserID(), sess.TokenID())
	return nil
}

func (i *Issuer) issue(ctx context.Context, p models.Principal, attrs map[string]string, flow string) (*TokenPair, error) {
	roles, perms, err := i.grants.ResolveGrants(ctx, p.TenantID, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentialLookup, err)
	}

	pair, err := i.codec.EncodePair(p, Grants{Roles: roles, Permissions: perms, AbacAttributes: attrs})
	if err != nil {
		return nil, err
	}

	TokensIssuedTotal.WithLabelValues(string(models.TokenAccess), flow).Inc()
	TokensIssuedTotal.WithLabelValues(string(models.TokenRefresh), flow).Inc()
	logging.Ctx(ctx).Debug().
		Str("tenant_id", p.TenantID).
		Str("user_id", p.UserID).
		Int("roles", len(roles)).
		Int("permissions", len(perms)).
		Str("flow", flow).
		Msg("Issued token pair")
	return pair, nil
}

// decodeResult is the metric label for a Decode error.
func decodeResult(err error) string {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind.String()
	}
	return "error"
}
