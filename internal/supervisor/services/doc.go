// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

/*
Package services provides suture.Service wrappers for Tenantguard components.

HTTPServerService turns ListenAndServe/Shutdown into a context-aware Serve and
drains connections for a bounded time when the supervisor stops it.

JanitorService runs named cleanup tasks on a ticker. Each run is counted in
tenantguard_janitor_runs_total and the number of removed entries in
tenantguard_janitor_removed_total. Typical tasks are the token blacklist's
CleanupExpired, the permission cache's CleanupExpired, and UptimeTask.

ChangeListenerService keeps the postgres catalog listener alive. Because
notifications are lost while the connection is down, the permission cache
is flushed each time LISTEN is back in effect.

All wrappers implement fmt.Stringer so suture events carry a readable name.
*/
package services
