// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/tenantguard/internal/logging"
)

var _ suture.Service = (*scriptedService)(nil)

var errConnReset = errors.New("connection reset")

func testLogger() *slog.Logger {
	return slog.New(logging.NewSlogHandler())
}

func TestSupervisorTreeConstruction(t *testing.T) {
	t.Run("creates hierarchical supervisor tree", func(t *testing.T) {
		tree, err := NewSupervisorTree(testLogger(), TreeConfig{
			FailureThreshold: 5,
			FailureBackoff:   time.Second,
			ShutdownTimeout:  10 * time.Second,
		})
		if err != nil {
			t.Fatalf("failed to create tree: %v", err)
		}

		if tree.Root() == nil {
			t.Error("root supervisor should not be nil")
		}
	})

	t.Run("applies default values for zero config", func(t *testing.T) {
		tree, err := NewSupervisorTree(testLogger(), TreeConfig{})
		if err != nil {
			t.Fatalf("failed to create tree: %v", err)
		}

		if tree.config != DefaultTreeConfig() {
			t.Errorf("config = %+v, want defaults %+v", tree.config, DefaultTreeConfig())
		}
	})
}

func TestSupervisorTreeLifecycle(t *testing.T) {
	t.Run("tree starts and stops gracefully", func(t *testing.T) {
		tree, err := NewSupervisorTree(testLogger(), TreeConfig{
			FailureThreshold: 5,
			FailureBackoff:   100 * time.Millisecond,
			ShutdownTimeout:  time.Second,
		})
		if err != nil {
			t.Fatalf("failed to create tree: %v", err)
		}

		storageSvc := newScriptedService("catalog-listener")
		apiSvc := newScriptedService("http-server")
		tree.AddStorageService(storageSvc)
		tree.AddAPIService(apiSvc)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			errCh <- tree.Serve(ctx)
		}()

		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("unexpected error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("tree did not shut down in time")
		}

		for _, svc := range []*scriptedService{storageSvc, apiSvc} {
			if svc.runs.Load() < 1 {
				t.Errorf("%s was not started", svc)
			}
			if svc.exits.Load() != svc.runs.Load() {
				t.Errorf("%s: %d runs, %d exits", svc, svc.runs.Load(), svc.exits.Load())
			}
		}
	})

	t.Run("ServeBackground returns channel", func(t *testing.T) {
		tree, _ := NewSupervisorTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		errCh := tree.ServeBackground(ctx)

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		case <-time.After(time.Second):
			t.Error("did not receive from error channel")
		}

		if report, err := tree.UnstoppedServiceReport(); err != nil || len(report) != 0 {
			t.Errorf("UnstoppedServiceReport = %v, %v; want empty", report, err)
		}
	})
}

func TestSupervisorTreeFailureHandling(t *testing.T) {
	t.Run("failing storage service is restarted without touching the api layer", func(t *testing.T) {
		tree, _ := NewSupervisorTree(testLogger(), TreeConfig{
			FailureThreshold: 10,
			FailureBackoff:   10 * time.Millisecond,
			ShutdownTimeout:  time.Second,
		})

		listener := newScriptedService("catalog-listener", errConnReset, errConnReset)
		server := newScriptedService("http-server")

		tree.AddStorageService(listener)
		tree.AddAPIService(server)

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()

		done := tree.ServeBackground(ctx)
		time.Sleep(200 * time.Millisecond)

		if got := listener.runs.Load(); got != 3 {
			t.Errorf("listener ran %d times, want 3", got)
		}
		if got := server.runs.Load(); got != 1 {
			t.Errorf("server ran %d times, want 1", got)
		}

		cancel()
		<-done
	})

	t.Run("service that declines restart stays down", func(t *testing.T) {
		tree, _ := NewSupervisorTree(testLogger(), TreeConfig{
			FailureThreshold: 10,
			FailureBackoff:   10 * time.Millisecond,
			ShutdownTimeout:  time.Second,
		})

		janitor := newScriptedService("janitor", errConnReset, suture.ErrDoNotRestart)
		tree.AddStorageService(janitor)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		<-tree.ServeBackground(ctx)

		if got := janitor.runs.Load(); got != 2 {
			t.Errorf("janitor ran %d times, want 2", got)
		}
	})
}
