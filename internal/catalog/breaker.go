// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package catalog

import (
	"context"
	"errors"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tenantguard/internal/config"
	"github.com/tomtom215/tenantguard/internal/logging"
	"github.com/tomtom215/tenantguard/internal/metrics"
	"github.com/tomtom215/tenantguard/internal/models"
)

// BreakerStore wraps a Store with a circuit breaker. While open, reads fail
// fast with gobreaker.ErrOpenState and the decision engine returns Error
// verdicts instead of queueing behind a dead database.
//
// ErrNotFound and context cancellation count as successes: neither says
// anything about the health of the backend.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[any]
	name  string
}

// NewBreakerStore wraps inner using cfg. name labels logs and metrics.
func NewBreakerStore(inner Store, name string, cfg config.BreakerConfig) *BreakerStore {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= threshold
			if trip {
				logging.Warn().Str("breaker", name).Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
		IsSuccessful: isSuccessful,
	})

	return &BreakerStore{inner: inner, cb: cb, name: name}
}

// State returns "closed", "half-open" or "open".
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func isSuccessful(err error) bool {
	return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
}

func (b *BreakerStore) record(err error) {
	switch {
	case isSuccessful(err):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(0)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(float64(b.cb.Counts().ConsecutiveFailures))
	}
}

// execute runs fn through the breaker and restores the static result type.
func execute[T any](b *BreakerStore, fn func() (T, error)) (T, error) {
	var zero T
	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	b.record(err)
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// Subscribe forwards to the wrapped store when it reports changes.
func (b *BreakerStore) Subscribe(fn func(ChangeEvent)) {
	if n, ok := b.inner.(ChangeNotifier); ok {
		n.Subscribe(fn)
	}
}

func (b *BreakerStore) UserRoles(ctx context.Context, tenantID, userID string) ([]models.UserRole, error) {
	return execute(b, func() ([]models.UserRole, error) {
		return b.inner.UserRoles(ctx, tenantID, userID)
	})
}

func (b *BreakerStore) RolesByIDs(ctx context.Context, tenantID string, roleIDs []string) ([]models.Role, error) {
	return execute(b, func() ([]models.Role, error) {
		return b.inner.RolesByIDs(ctx, tenantID, roleIDs)
	})
}

func (b *BreakerStore) PermissionsByIDs(ctx context.Context, tenantID string, permissionIDs []string) ([]models.Permission, error) {
	return execute(b, func() ([]models.Permission, error) {
		return b.inner.PermissionsByIDs(ctx, tenantID, permissionIDs)
	})
}

func (b *BreakerStore) PermissionByResourceAction(ctx context.Context, tenantID, resource, action string) (*models.Permission, error) {
	return execute(b, func() (*models.Permission, error) {
		return b.inner.PermissionByResourceAction(ctx, tenantID, resource, action)
	})
}

func (b *BreakerStore) Rules(ctx context.Context, tenantID string) ([]models.PermissionRule, error) {
	return execute(b, func() ([]models.PermissionRule, error) {
		return b.inner.Rules(ctx, tenantID)
	})
}

func (b *BreakerStore) Policies(ctx context.Context, tenantID, resource, action string) ([]models.AbacPolicy, error) {
	return execute(b, func() ([]models.AbacPolicy, error) {
		return b.inner.Policies(ctx, tenantID, resource, action)
	})
}

func (b *BreakerStore) UserByUsername(ctx context.Context, tenantID, username string) (*models.User, error) {
	return execute(b, func() (*models.User, error) {
		return b.inner.UserByUsername(ctx, tenantID, username)
	})
}

func (b *BreakerStore) UserByID(ctx context.Context, tenantID, userID string) (*models.User, error) {
	return execute(b, func() (*models.User, error) {
		return b.inner.UserByID(ctx, tenantID, userID)
	})
}
