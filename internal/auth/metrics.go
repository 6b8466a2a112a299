// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokenDecodeTotal counts bearer token decodes by result
	// (ok, expired, invalid_signature, malformed, wrong_issuer).
	TokenDecodeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_token_decode_total",
			Help: "Total number of bearer token decodes by result",
		},
		[]string{"result"},
	)

	// TokensIssuedTotal counts issued tokens by type and flow (login, refresh).
	TokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_tokens_issued_total",
			Help: "Total number of tokens issued",
		},
		[]string{"token_type", "flow"},
	)

	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_login_attempts_total",
			Help: "Total number of login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// BlacklistOperationsTotal counts revocation store calls.
	// operation: revoke, check, cleanup; outcome: success, revoked, failure.
	BlacklistOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_blacklist_operations_total",
			Help: "Total number of token blacklist operations",
		},
		[]string{"backend", "operation", "outcome"},
	)

	BlacklistSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenantguard_blacklist_size",
			Help: "Current number of revoked tokens held in memory",
		},
		[]string{"backend"},
	)
)
