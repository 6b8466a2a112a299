// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

/*
Package auth issues, decodes and revokes the signed tokens that carry a
caller's identity and authorization claims.

Components:

  - TokenCodec: HS256 JWT encode/decode with typed decode failures
  - SessionContext: read-only per-request view of decoded claims, carried
    in context.Context (WithSession / SessionFromContext)
  - Blacklist: revoked token ids (memory, Badger, Redis)
  - Issuer: login, refresh and logout flows
  - Middleware: bearer extraction, decode, revocation and tenant header checks

Token Claims:

	sub             user id
	iss, iat, exp   standard registered claims
	jti             random id, the key used for revocation
	tenantId        tenant partition for every catalog lookup
	clientId        optional calling application
	tokenType       ACCESS or REFRESH
	roles           role names (ACCESS only)
	permissions     "resource:action" identifiers (ACCESS only)
	abacAttributes  flat string map (ACCESS only)

Refresh tokens carry identity only, so a refresh always re-resolves grants
from the catalog.

Decode Failures:

Decode returns a *DecodeError whose Kind is one of InvalidSignature,
Expired, MalformedToken or WrongIssuer. Expired is reported only after the
signature and issuer verified, so callers can treat it as "needs refresh"
rather than "reject outright".

Session Propagation:

The session travels through the request context, never through globals:

	sess := auth.SessionFromContext(r.Context())
	if sess.HasPermission("orders:read") { ... }

All SessionContext methods are safe on a nil receiver and report absence.
*/
package auth
