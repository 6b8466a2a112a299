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

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/tenantguard/internal/auth"
	"github.com/tomtom215/tenantguard/internal/metrics"
)

var _ suture.Service = (*JanitorService)(nil)

func countingTask(name string, removed int, err error, calls *atomic.Int32) JanitorTask {
	return JanitorTask{
		Name: name,
		Run: func(context.Context) (int, error) {
			calls.Add(1)
			return removed, err
		},
	}
}

func TestJanitorRunOnceContinuesAfterFailure(t *testing.T) {
	var first, second atomic.Int32
	j := NewJanitorService(time.Minute,
		countingTask("janitor-test-fail", 0, errors.New("store closed"), &first),
		countingTask("janitor-test-ok", 3, nil, &second),
	)

	failed := metrics.JanitorRunsTotal.WithLabelValues("janitor-test-fail", "error")
	removed := metrics.JanitorRemovedTotal.WithLabelValues("janitor-test-ok")
	failedBefore, removedBefore := testutil.ToFloat64(failed), testutil.ToFloat64(removed)

	j.RunOnce(context.Background())

	if first.Load() != 1 || second.Load() != 1 {
		t.Errorf("calls = %d, %d; want 1, 1", first.Load(), second.Load())
	}
	if d := testutil.ToFloat64(failed) - failedBefore; d != 1 {
		t.Errorf("error runs delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(removed) - removedBefore; d != 3 {
		t.Errorf("removed delta = %v, want 3", d)
	}
}

func TestJanitorRunOnceStopsWhenCanceled(t *testing.T) {
	var calls atomic.Int32
	j := NewJanitorService(time.Minute, countingTask("janitor-test-canceled", 0, nil, &calls))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j.RunOnce(ctx)

	if calls.Load() != 0 {
		t.Errorf("task ran %d times after cancellation", calls.Load())
	}
}

func TestJanitorServeTicks(t *testing.T) {
	var calls atomic.Int32
	j := NewJanitorService(10*time.Millisecond, countingTask("janitor-test-tick", 0, nil, &calls))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := j.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve = %v, want context.DeadlineExceeded", err)
	}
	if calls.Load() < 2 {
		t.Errorf("task ran %d times, want at least 2", calls.Load())
	}
}

func TestJanitorCleansBlacklist(t *testing.T) {
	bl := auth.NewMemoryBlacklist()
	t.Cleanup(func() { _ = bl.Close() })

	ctx := context.Background()
	_ = bl.Revoke(ctx, "short", time.Now().Add(20*time.Millisecond))
	_ = bl.Revoke(ctx, "live", time.Now().Add(time.Hour))
	time.Sleep(40 * time.Millisecond)

	NewJanitorService(time.Minute, JanitorTask{Name: "blacklist", Run: bl.CleanupExpired}, UptimeTask()).RunOnce(ctx)

	if bl.Size() != 1 {
		t.Errorf("blacklist size = %d, want 1", bl.Size())
	}
}

func TestNewJanitorServiceDefaults(t *testing.T) {
	j := NewJanitorService(0)
	if j.interval != time.Minute {
		t.Errorf("interval = %v, want 1m", j.interval)
	}
	if j.String() != "janitor" {
		t.Errorf("String() = %q", j.String())
	}
}
