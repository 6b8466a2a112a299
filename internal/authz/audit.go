// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package authz

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/tenantguard/internal/config"
	"github.com/tomtom215/tenantguard/internal/logging"
)

// AuditEvent records one authorization decision.
type AuditEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// RequestID links this event to an HTTP request (if applicable)
	RequestID string `json:"request_id,omitempty"`

	TenantID string `json:"tenant_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Path     string `json:"path,omitempty"`
	Method   string `json:"method,omitempty"`

	// Resource and Action are the permission that was checked, if any.
	Resource string `json:"resource,omitempty"`
	Action   string `json:"action,omitempty"`
	RuleID   string `json:"rule_id,omitempty"`

	Verdict  Verdict       `json:"verdict"`
	Reason   Reason        `json:"reason"`
	Duration time.Duration `json:"duration_ns"`

	IPAddress string `json:"ip_address,omitempty"`
}

// AuditLogger writes decisions asynchronously. LogDecision never blocks the
// request: when the buffer is full the event is dropped and counted.
type AuditLogger struct {
	config   config.AuditConfig
	logger   zerolog.Logger
	events   chan *AuditEvent
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	written map[Verdict]int64
	dropped int64
}

// NewAuditLogger creates and starts an audit logger.
func NewAuditLogger(cfg config.AuditConfig) *AuditLogger {
	return NewAuditLoggerWithLogger(cfg, logging.WithComponent("audit"))
}

// NewAuditLoggerWithLogger is used by tests to capture output.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewAuditLoggerWithLogger(cfg config.AuditConfig, logger zerolog.Logger) *AuditLogger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}

	al := &AuditLogger{
		config:   cfg,
		logger:   logger,
		events:   make(chan *AuditEvent, cfg.BufferSize),
		stopChan: make(chan struct{}),
		written:  make(map[Verdict]int64),
	}

	if cfg.Enabled {
		al.wg.Add(1)
		go al.processEvents()
	}
	return al
}

// LogDecision queues event. Allow decisions are skipped unless LogAllowed is set.
func (al *AuditLogger) LogDecision(event *AuditEvent) {
	if al == nil || !al.config.Enabled {
		return
	}
	if event.Verdict == VerdictAllow && !al.config.LogAllowed {
		return
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case al.events <- event:
	default:
		AuthzAuditDroppedTotal.Inc()
		al.mu.Lock()
		al.dropped++
		al.mu.Unlock()
		logging.Warn().
			Str("tenant_id", event.TenantID).
			Str("path", event.Path).
			Msg("Audit log buffer full, event dropped")
	}
}

func (al *AuditLogger) processEvents() {
	defer al.wg.Done()

	for {
		select {
		case <-al.stopChan:
			al.drainEvents()
			return
		case event := <-al.events:
			al.writeEvent(event)
		}
	}
}

func (al *AuditLogger) drainEvents() {
	for {
		select {
		case event := <-al.events:
			al.writeEvent(event)
		default:
			return
		}
	}
}

func (al *AuditLogger) writeEvent(event *AuditEvent) {
	e := al.logger.Info()
	if event.Verdict != VerdictAllow {
		e = al.logger.Warn()
	}

	e = e.
		Str("event_type", "authz_decision").
		Str("audit_id", event.ID).
		Time("audit_timestamp", event.Timestamp).
		Str("tenant_id", event.TenantID).
		Str("user_id", event.UserID).
		Str("verdict", event.Verdict.String()).
		Str("reason", string(event.Reason)).
		Dur("duration", event.Duration)

	if event.RequestID != "" {
		e = e.Str("request_id", event.RequestID)
	}
	if event.Path != "" {
		e = e.Str("path", event.Path).Str("method", event.Method)
	}
	if event.Resource != "" {
		e = e.Str("resource", event.Resource).Str("action", event.Action)
	}
	if event.RuleID != "" {
		e = e.Str("rule_id", event.RuleID)
	}
	if event.IPAddress != "" {
		e = e.Str("ip_address", event.IPAddress)
	}
	e.Msg("Authorization decision")

	AuthzAuditEventsTotal.WithLabelValues(event.Verdict.String()).Inc()
	al.mu.Lock()
	al.written[event.Verdict]++
	al.mu.Unlock()
}

// Close stops the audit logger and flushes remaining events.
// It is safe to call multiple times.
func (al *AuditLogger) Close() {
	if al == nil {
		return
	}
	al.stopOnce.Do(func() {
		close(al.stopChan)
	})
	al.wg.Wait()
}

// AuditLoggerStats provides statistics about the audit logger.
type AuditLoggerStats struct {
	Enabled    bool  `json:"enabled"`
	LogAllowed bool  `json:"log_allowed"`
	BufferSize int   `json:"buffer_size"`
	BufferUsed int   `json:"buffer_used"`
	Allowed    int64 `json:"allowed"`
	Denied     int64 `json:"denied"`
	Errors     int64 `json:"errors"`
	Dropped    int64 `json:"dropped"`
}

// Stats returns current audit logger statistics.
func (al *AuditLogger) Stats() AuditLoggerStats {
	if al == nil {
		return AuditLoggerStats{}
	}

	al.mu.Lock()
	defer al.mu.Unlock()
	return AuditLoggerStats{
		Enabled:    al.config.Enabled,
		LogAllowed: al.config.LogAllowed,
		BufferSize: al.config.BufferSize,
		BufferUsed: len(al.events),
		Allowed:    al.written[VerdictAllow],
		Denied:     al.written[VerdictDeny],
		Errors:     al.written[VerdictError],
		Dropped:    al.dropped,
	}
}
