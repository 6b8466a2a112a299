// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

/*
Package metrics holds the process-wide Prometheus metrics that are not owned
by a single domain package: HTTP traffic, catalog store queries, circuit
breakers and build info.

Domain metrics live next to their code (auth/metrics.go, authz/metrics.go).
Everything registers on the default registry and is exposed at /metrics.
*/
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantguard_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenantguard_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// Catalog Metrics
	CatalogQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantguard_catalog_query_duration_seconds",
			Help:    "Duration of catalog store reads in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

	CatalogQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_catalog_query_errors_total",
			Help: "Total number of failed catalog store reads",
		},
		[]string{"store", "operation"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenantguard_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenantguard_circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Background maintenance
	JanitorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_janitor_runs_total",
			Help: "Total number of janitor task runs by result",
		},
		[]string{"task", "result"},
	)

	JanitorRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantguard_janitor_removed_total",
			Help: "Total number of entries removed by janitor tasks",
		},
		[]string{"task"},
	)

	// Application Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenantguard_app_info",
			Help: "Build information, always 1",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenantguard_app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordAPIRequest records an API request metric. route should be the
// router pattern, not the raw path, to keep cardinality bounded.
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordCatalogQuery records one catalog read.
func RecordCatalogQuery(store, operation string, duration time.Duration, err error) {
	CatalogQueryDuration.WithLabelValues(store, operation).Observe(duration.Seconds())
	if err != nil {
		CatalogQueryErrors.WithLabelValues(store, operation).Inc()
	}
}

// RecordJanitorRun records one janitor task run.
func RecordJanitorRun(task string, removed int, err error) {
	if err != nil {
		JanitorRunsTotal.WithLabelValues(task, "error").Inc()
		return
	}
	JanitorRunsTotal.WithLabelValues(task, "ok").Inc()
	if removed > 0 {
		JanitorRemovedTotal.WithLabelValues(task).Add(float64(removed))
	}
}

// SetAppInfo publishes the build info gauge and starts the uptime clock.
func SetAppInfo(version, goVersion string) {
	AppInfo.WithLabelValues(version, goVersion).Set(1)
	appStart = time.Now()
}

var appStart = time.Now()

// UpdateUptime refreshes the uptime gauge. Called from the janitor service.
func UpdateUptime() {
	AppUptime.Set(time.Since(appStart).Seconds())
}
