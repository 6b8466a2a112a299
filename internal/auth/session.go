// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package auth

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/tomtom215/tenantguard/internal/models"
)

// SessionContext is a read-only projection of decoded claims for one request.
//
// Role and permission checks are set-membership tests on the token contents.
// They reflect grants as of issuance, not live catalog state; use the
// decision engine when live state matters.
type SessionContext struct {
	userID     string
	tenantID   string
	clientID   string
	tokenID    string
	tokenType  models.TokenType
	expiresAt  time.Time
	roles      map[string]struct{}
	perms      map[string]struct{}
	attributes map[string]string
}

// NewSessionContext copies claims into an immutable session. Returns nil for nil claims.
func NewSessionContext(c *Claims) *SessionContext {
	if c == nil {
		return nil
	}
	s := &SessionContext{
		userID:     c.Subject,
		tenantID:   c.TenantID,
		clientID:   c.ClientID,
		tokenID:    c.ID,
		tokenType:  c.TokenType,
		roles:      toSet(c.Roles),
		perms:      toSet(c.Permissions),
		attributes: make(map[string]string, len(c.AbacAttributes)),
	}
	if c.ExpiresAt != nil {
		s.expiresAt = c.ExpiresAt.Time
	}
	for k, v := range c.AbacAttributes {
		s.attributes[k] = v
	}
	return s
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HasSession reports whether a decoded token backs this session.
func (s *SessionContext) HasSession() bool {
	return s != nil
}

func (s *SessionContext) UserID() string {
	if s == nil {
		return ""
	}
	return s.userID
}

func (s *SessionContext) TenantID() string {
	if s == nil {
		return ""
	}
	return s.tenantID
}

func (s *SessionContext) ClientID() string {
	if s == nil {
		return ""
	}
	return s.clientID
}

func (s *SessionContext) TokenType() models.TokenType {
	if s == nil {
		return ""
	}
	return s.tokenType
}

// TokenID is the jti, used for revocation.
func (s *SessionContext) TokenID() string {
	if s == nil {
		return ""
	}
	return s.tokenID
}

func (s *SessionContext) ExpiresAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.expiresAt
}

// Principal returns the caller identity.
func (s *SessionContext) Principal() models.Principal {
	return models.Principal{UserID: s.UserID(), TenantID: s.TenantID(), ClientID: s.ClientID()}
}

func (s *SessionContext) HasRole(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.roles[name]
	return ok
}

func (s *SessionContext) HasAnyRole(names ...string) bool {
	return slices.ContainsFunc(names, s.HasRole)
}

func (s *SessionContext) HasPermission(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.perms[id]
	return ok
}

func (s *SessionContext) HasAnyPermission(ids ...string) bool {
	return slices.ContainsFunc(ids, s.HasPermission)
}

// Roles returns the role names sorted.
func (s *SessionContext) Roles() []string {
	if s == nil {
		return nil
	}
	return sortedKeys(s.roles)
}

// Permissions returns the permission identifiers sorted.
func (s *SessionContext) Permissions() []string {
	if s == nil {
		return nil
	}
	return sortedKeys(s.perms)
}

// AbacAttribute returns the attribute and whether it was present.
func (s *SessionContext) AbacAttribute(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.attributes[key]
	return v, ok
}

// AbacAttributeOr returns the attribute or def when absent.
func (s *SessionContext) AbacAttributeOr(key, def string) string {
	if v, ok := s.AbacAttribute(key); ok {
		return v
	}
	return def
}

// AbacAttributes returns a copy of all attributes.
func (s *SessionContext) AbacAttributes() models.Attributes {
	if s == nil {
		return models.Attributes{}
	}
	return models.Attributes(s.attributes).Clone()
}

type sessionKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *SessionContext) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the request's session, or nil when unauthenticated.
func SessionFromContext(ctx context.Context) *SessionContext {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(sessionKey{}).(*SessionContext)
	return s
}
