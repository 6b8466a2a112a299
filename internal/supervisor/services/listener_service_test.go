// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var _ suture.Service = (*ChangeListenerService)(nil)

// flakyListener fails its first fails calls before subscribing, then
// subscribes and blocks until canceled.
type flakyListener struct {
	fails     int32
	calls     atomic.Int32
	listening atomic.Bool
}

func (l *flakyListener) Listen(ctx context.Context, ready func()) error {
	if l.calls.Add(1) <= l.fails {
		return errors.New("connection reset")
	}
	l.listening.Store(true)
	defer l.listening.Store(false)
	if ready != nil {
		ready()
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestChangeListenerServiceReturnsListenError(t *testing.T) {
	l := &flakyListener{fails: 1}
	var flushes atomic.Int32
	svc := NewChangeListenerService(l, func() { flushes.Add(1) })

	err := svc.Serve(context.Background())
	if err == nil || err.Error() != "connection reset" {
		t.Errorf("Serve = %v, want connection reset", err)
	}
	if flushes.Load() != 0 {
		t.Errorf("onResubscribe ran %d times before any subscription", flushes.Load())
	}
}

func TestChangeListenerServiceFlushesOnceSubscribed(t *testing.T) {
	l := &flakyListener{}
	var flushedWhileListening atomic.Bool
	svc := NewChangeListenerService(l, func() { flushedWhileListening.Store(l.listening.Load()) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = svc.Serve(ctx)

	if !flushedWhileListening.Load() {
		t.Error("onResubscribe ran before the subscription was in effect")
	}
}

func TestChangeListenerServiceRestartsUnderSupervisor(t *testing.T) {
	l := &flakyListener{fails: 2}
	var flushes atomic.Int32

	sup := suture.New("test-sup", suture.Spec{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          time.Second,
	})
	sup.Add(NewChangeListenerService(l, func() { flushes.Add(1) }))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	<-sup.ServeBackground(ctx)

	if l.calls.Load() != 3 {
		t.Errorf("Listen calls = %d, want 3", l.calls.Load())
	}
	// Only the attempt that subscribed flushes.
	if flushes.Load() != 1 {
		t.Errorf("onResubscribe calls = %d, want 1", flushes.Load())
	}
}

func TestChangeListenerServiceNilHook(t *testing.T) {
	svc := NewChangeListenerService(&flakyListener{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve = %v, want context.DeadlineExceeded", err)
	}
	if svc.String() != "catalog-listener" {
		t.Errorf("String() = %q", svc.String())
	}
}
