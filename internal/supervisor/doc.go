// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

/*
Package supervisor provides process supervision for Tenantguard using suture v4.

The tree owns every long-running goroutine in the server. Services are split
into two layers so that a storage fault never takes the HTTP listener down:

	RootSupervisor ("tenantguard")
	├── StorageSupervisor ("storage-layer")
	│   ├── JanitorService            blacklist and cache expiry, uptime gauge
	│   └── ChangeListenerService     postgres LISTEN loop (postgres store only)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

# Usage

	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddStorageService(services.NewJanitorService(time.Minute, tasks...))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}

# Restart Behavior

Each supervisor keeps a failure counter that decays over FailureDecay
seconds. Once it passes FailureThreshold, restarts are delayed by
FailureBackoff. A service returning nil is not restarted; returning an error
means it crashed. Services must return promptly once their context is done,
otherwise they show up in UnstoppedServiceReport after ShutdownTimeout.

Supervisor events are logged through sutureslog onto the zerolog-backed slog
handler from internal/logging.
*/
package supervisor
