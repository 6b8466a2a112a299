// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package api

import (
	"context"
	"time"

	"github.com/tomtom215/tenantguard/internal/auth"
	"github.com/tomtom215/tenantguard/internal/authz"
)

// ReadinessCheck reports whether one backing dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Handler contains dependencies for API handlers
//
// Handler methods are split across files:
//   - handlers.go: Handler struct and constructor (this file)
//   - handlers_auth.go: login, refresh, logout and session endpoints
//   - handlers_authz.go: permission checks and admin introspection
//   - handlers_health.go: liveness and readiness probes
type Handler struct {
	issuer    *auth.Issuer
	engine    *authz.DecisionEngine
	audit     *authz.AuditLogger
	version   string
	startTime time.Time

	checks map[string]ReadinessCheck
}

// NewHandler creates a new API handler.
//
// The audit logger may be nil; the audit stats endpoint then reports a
// disabled logger.
func NewHandler(issuer *auth.Issuer, engine *authz.DecisionEngine, audit *authz.AuditLogger, version string) *Handler {
	return &Handler{
		issuer:    issuer,
		engine:    engine,
		audit:     audit,
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]ReadinessCheck),
	}
}

// AddReadinessCheck registers a dependency probed by /readyz. Must be called
// before the handler serves requests.
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}
