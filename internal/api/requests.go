// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tenantguard/internal/validation"
)

// maxRequestBodyBytes caps every JSON body.
const maxRequestBodyBytes = 64 << 10

// LogoutRequest is the optional body of POST /api/v1/auth/logout. When a
// refresh token is given it is revoked together with the access token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// BatchCheckRequest is the body of POST /api/v1/authz/check.
//
// Fields:
//   - Permissions: identifiers of the form resource:action (1-100 entries);
//     malformed identifiers are reported as false, not rejected
type BatchCheckRequest struct {
	Permissions []string `json:"permissions" validate:"required,min=1,max=100,dive,max=256"`
}

// BatchCheckResponse maps each requested identifier to its RBAC result.
type BatchCheckResponse struct {
	Results map[string]bool `json:"results"`
}

// readJSON decodes the request body into dst. An empty body yields
// ErrEmptyBody so callers can decide whether it is acceptable.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ErrBodyTooLarge
		}
		return err
	}
	if len(body) == 0 {
		return ErrEmptyBody
	}
	return json.Unmarshal(body, dst)
}

// bindJSON decodes and validates a required body, writing the 400 response
// itself when either step fails.
func bindJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	rw := NewResponseWriter(w, r)
	if err := readJSON(w, r, dst); err != nil {
		switch {
		case errors.Is(err, ErrEmptyBody):
			rw.BadRequest("request body is required")
		case errors.Is(err, ErrBodyTooLarge):
			rw.Error(http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
		default:
			rw.BadRequest("request body is not valid JSON")
		}
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		rw.ValidationError(verr.Error(), verr.Fields)
		return false
	}
	return true
}
