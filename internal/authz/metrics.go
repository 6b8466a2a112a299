// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

// Prometheus metrics for the decision engine.
//
// Metrics Categories:
//   - Decisions: verdict and reason counts, latency histogram
//   - Errors: store failures by evaluation stage
//   - Cache: hit/miss rates, invalidations, entries
//   - ABAC: unrecognized condition clauses and operators
//   - Audit: queued and dropped audit events

package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decision Metrics

	// AuthzDecisionsTotal counts decisions by verdict and reason.
	AuthzDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_authz_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"verdict", "reason"},
	)

	// AuthzDecisionDuration tracks the latency of Authorize calls.
	AuthzDecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "tenantguard_authz_decision_duration_seconds",
			Help: "Duration of authorization decisions in seconds",
			// Buckets optimized for authz checks (microseconds to milliseconds)
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"verdict"},
	)

	// AuthzErrorsTotal counts store failures (not denials) by stage:
	// rules, rbac, abac, conditions.
	AuthzErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_authz_errors_total",
			Help: "Total number of authorization errors",
		},
		[]string{"stage"},
	)

	// Cache Metrics

	AuthzCacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_authz_cache_hits_total",
			Help: "Total number of permission cache hits",
		},
		[]string{"backend"},
	)

	AuthzCacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_authz_cache_misses_total",
			Help: "Total number of permission cache misses",
		},
		[]string{"backend"},
	)

	// AuthzCacheInvalidationsTotal counts invalidations by scope (user, tenant, all).
	AuthzCacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_authz_cache_invalidations_total",
			Help: "Total number of permission cache invalidations",
		},
		[]string{"scope"},
	)

	AuthzCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenantguard_authz_cache_entries",
			Help: "Current number of entries in the in-memory permission cache",
		},
	)

	AuthzCacheErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantguard_authz_cache_errors_total",
			Help: "Total number of permission cache backend errors",
		},
	)

	// AuthzCacheStaleWritesTotal counts resolved grants not cached because the
	// tenant was invalidated while they were being read from the catalog.
	AuthzCacheStaleWritesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantguard_authz_cache_stale_writes_total",
			Help: "Total number of permission cache writes dropped after a concurrent invalidation",
		},
	)

	// ABAC Metrics

	// AbacUnknownClausesTotal counts evaluations that met a policy clause or
	// permission operator the evaluator could not interpret and treated as
	// passed. kind: condition, operator.
	AbacUnknownClausesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_authz_abac_unknown_clauses_total",
			Help: "Total number of unrecognized ABAC clauses or operators treated as passed",
		},
		[]string{"kind"},
	)

	// Audit Metrics

	AuthzAuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_authz_audit_events_total",
			Help: "Total number of audit events logged",
		},
		[]string{"verdict"},
	)

	// AuthzAuditDroppedTotal counts audit events dropped due to buffer overflow.
	AuthzAuditDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantguard_authz_audit_dropped_total",
			Help: "Total number of audit events dropped (buffer overflow)",
		},
	)
)

// RecordDecision records one Authorize outcome.
func RecordDecision(d Decision, duration time.Duration) {
	AuthzDecisionsTotal.WithLabelValues(d.Verdict.String(), string(d.Reason)).Inc()
	AuthzDecisionDuration.WithLabelValues(d.Verdict.String()).Observe(duration.Seconds())
}

// RecordAuthzError records a store failure at the given stage.
func RecordAuthzError(stage string) {
	AuthzErrorsTotal.WithLabelValues(stage).Inc()
}

// RecordCacheLookup records a hit or miss for backend.
func RecordCacheLookup(backend string, hit bool) {
	if hit {
		AuthzCacheHitsTotal.WithLabelValues(backend).Inc()
		return
	}
	AuthzCacheMissesTotal.WithLabelValues(backend).Inc()
}

// RecordCacheInvalidation records an invalidation with scope user, tenant or all.
func RecordCacheInvalidation(scope string) {
	AuthzCacheInvalidationsTotal.WithLabelValues(scope).Inc()
}
