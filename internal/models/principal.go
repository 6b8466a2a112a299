// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package models

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "ACCESS"
	TokenRefresh TokenType = "REFRESH"
)

// Valid reports whether t is ACCESS or REFRESH.
func (t TokenType) Valid() bool {
	return t == TokenAccess || t == TokenRefresh
}

// Principal identifies the caller.
type Principal struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	ClientID string `json:"client_id,omitempty"`
}

// User is the credential record consulted at login.
type User struct {
	ID           string `json:"id" validate:"required"`
	TenantID     string `json:"tenant_id" validate:"required"`
	Username     string `json:"username" validate:"required"`
	PasswordHash string `json:"password_hash" validate:"required"`
	Enabled      bool   `json:"enabled"`

	// Attributes are embedded in access tokens as abacAttributes.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Principal returns the identity of u for the given client.
func (u *User) Principal(clientID string) Principal {
	return Principal{UserID: u.ID, TenantID: u.TenantID, ClientID: clientID}
}
