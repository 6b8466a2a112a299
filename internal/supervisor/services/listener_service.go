// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package services

import (
	"context"

	"github.com/tomtom215/tenantguard/internal/logging"
)

// ChangeListener blocks delivering catalog change notifications until ctx
// is done or the underlying connection fails. It calls ready once the
// subscription is in effect. *catalog.PostgresStore satisfies it.
type ChangeListener interface {
	Listen(ctx context.Context, ready func()) error
}

// ChangeListenerService keeps a ChangeListener running. When Listen fails,
// suture restarts the service with backoff. Notifications sent while the
// listener was down are lost, so onResubscribe runs each time a
// subscription is in effect, and not before, to drop whatever cached state
// they would have invalidated.
type ChangeListenerService struct {
	listener      ChangeListener
	onResubscribe func()
	name          string
}

// NewChangeListenerService wraps listener. onResubscribe may be nil.
func NewChangeListenerService(listener ChangeListener, onResubscribe func()) *ChangeListenerService {
	return &ChangeListenerService{
		listener:      listener,
		onResubscribe: onResubscribe,
		name:          "catalog-listener",
	}
}

// Serve implements suture.Service.
func (s *ChangeListenerService) Serve(ctx context.Context) error {
	err := s.listener.Listen(ctx, s.onResubscribe)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logging.Warn().Err(err).Msg("Catalog change listener stopped, restarting")
	return err
}

// String names the service in suture events.
func (s *ChangeListenerService) String() string {
	return s.name
}
