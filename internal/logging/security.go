// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package logging

import (
	"github.com/rs/zerolog"
)

// SecurityEvent is an authentication event worth keeping in the log stream.
type SecurityEvent struct {
	// Event names the occurrence (login_success, token_rejected, ...).
	Event    string
	TenantID string
	UserID   string
	Username string
	// TokenID is the jti of the token involved, if any.
	TokenID   string
	IPAddress string
	Success   bool
	Reason    string
}

// SecurityLogger writes authentication events with identifiers masked.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger creates a security logger on top of the global logger.
func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{logger: WithComponent("auth")}
}

// NewSecurityLoggerWithLogger is used by tests to capture output.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger.With().Str("component", "auth").Logger()}
}

// LogEvent writes ev at info level on success and warn level otherwise.
func (l *SecurityLogger) LogEvent(ev *SecurityEvent) {
	e := l.logger.Info()
	if !ev.Success {
		e = l.logger.Warn()
	}
	e = e.Str("event", ev.Event).Bool("success", ev.Success)
	if ev.TenantID != "" {
		e = e.Str("tenant_id", ev.TenantID)
	}
	if ev.UserID != "" {
		e = e.Str("user_id", ev.UserID)
	}
	if ev.Username != "" {
		e = e.Str("username", SanitizeUsername(ev.Username))
	}
	if ev.TokenID != "" {
		e = e.Str("jti", SanitizeToken(ev.TokenID))
	}
	if ev.IPAddress != "" {
		e = e.Str("ip", ev.IPAddress)
	}
	if ev.Reason != "" {
		e = e.Str("reason", ev.Reason)
	}
	e.Msg("security event")
}

func (l *SecurityLogger) LogLoginSuccess(tenantID, userID, username, ip string) {
	l.LogEvent(&SecurityEvent{Event: "login_success", TenantID: tenantID, UserID: userID, Username: username, IPAddress: ip, Success: true})
}

func (l *SecurityLogger) LogLoginFailure(tenantID, username, ip, reason string) {
	l.LogEvent(&SecurityEvent{Event: "login_failure", TenantID: tenantID, Username: username, IPAddress: ip, Reason: reason})
}

func (l *SecurityLogger) LogLogout(tenantID, userID, tokenID string) {
	l.LogEvent(&SecurityEvent{Event: "logout", TenantID: tenantID, UserID: userID, TokenID: tokenID, Success: true})
}

func (l *SecurityLogger) LogTokenRefresh(tenantID, userID string, success bool, reason string) {
	l.LogEvent(&SecurityEvent{Event: "token_refresh", TenantID: tenantID, UserID: userID, Success: success, Reason: reason})
}

// LogTokenRejected records a bearer token that failed authentication.
func (l *SecurityLogger) LogTokenRejected(ip, reason string) {
	l.LogEvent(&SecurityEvent{Event: "token_rejected", IPAddress: ip, Reason: reason})
}

func (l *SecurityLogger) LogTenantMismatch(tokenTenant, headerTenant, userID string) {
	l.LogEvent(&SecurityEvent{
		Event:    "tenant_mismatch",
		TenantID: tokenTenant,
		UserID:   userID,
		Reason:   "header tenant " + headerTenant,
	})
}

// SanitizeToken masks a token, keeping the first and last 4 characters.
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeUsername keeps the first two characters.
func SanitizeUsername(username string) string {
	if len(username) <= 2 {
		return "***"
	}
	return username[:2] + "***"
}
