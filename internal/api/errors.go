// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package api

import "errors"

// Request decoding errors
var (
	// ErrEmptyBody indicates a request that needs a JSON body sent none
	ErrEmptyBody = errors.New("request body is empty")

	// ErrBodyTooLarge indicates a body over maxRequestBodyBytes
	ErrBodyTooLarge = errors.New("request body too large")
)
