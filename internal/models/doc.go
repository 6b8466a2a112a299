// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

/*
Package models defines the data structures shared by the authorization engine.

Every catalog entity carries exactly one TenantID. No lookup in this module
crosses a tenant boundary, and the stores in internal/catalog enforce that by
taking the tenant as the first key of every read.

Key Components:

  - Principal: the caller identity (user, tenant, client)
  - Role, Permission, UserRole: the RBAC catalog
  - PermissionRule: path/method to required-permission mapping for admin endpoints
  - AbacPolicy: attribute conditions attached to a (resource, action) pair
  - User: login credentials and the ABAC attributes embedded at issuance
  - TokenType: ACCESS or REFRESH

Permission Identifiers:

The canonical identifier of a permission is "resource:action". Rules may
prefix it with "admin:"; ParsePermissionID strips that prefix before
splitting at the first colon, so "admin:orders:read" and "orders:read" name
the same capability.
*/
package models
