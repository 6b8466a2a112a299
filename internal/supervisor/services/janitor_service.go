// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package services

import (
	"context"
	"time"

	"github.com/tomtom215/tenantguard/internal/logging"
	"github.com/tomtom215/tenantguard/internal/metrics"
)

// CleanupFunc removes expired state and reports how many entries it removed.
type CleanupFunc func(ctx context.Context) (int, error)

// JanitorTask is one named cleanup step.
type JanitorTask struct {
	Name string
	Run  CleanupFunc
}

// JanitorService runs its tasks on a fixed interval. Task errors are logged
// and counted but never stop the service; a failing task is retried on the
// next tick.
type JanitorService struct {
	interval time.Duration
	tasks    []JanitorTask
	name     string
}

// NewJanitorService creates a janitor. A non-positive interval means one minute.
func NewJanitorService(interval time.Duration, tasks ...JanitorTask) *JanitorService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &JanitorService{
		interval: interval,
		tasks:    tasks,
		name:     "janitor",
	}
}

// Serve implements suture.Service.
func (j *JanitorService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce runs every task once, in order.
func (j *JanitorService) RunOnce(ctx context.Context) {
	logger := logging.WithComponent("janitor")
	for _, task := range j.tasks {
		if ctx.Err() != nil {
			return
		}
		removed, err := task.Run(ctx)
		metrics.RecordJanitorRun(task.Name, removed, err)
		if err != nil {
			logger.Warn().Err(err).Str("task", task.Name).Msg("Janitor task failed")
			continue
		}
		if removed > 0 {
			logger.Debug().Str("task", task.Name).Int("removed", removed).Msg("Janitor task removed entries")
		}
	}
}

// String names the service in suture events.
func (j *JanitorService) String() string {
	return j.name
}

// UptimeTask refreshes the uptime gauge; it never removes anything.
func UptimeTask() JanitorTask {
	return JanitorTask{
		Name: "uptime",
		Run: func(context.Context) (int, error) {
			metrics.UpdateUptime()
			return 0, nil
		},
	}
}
