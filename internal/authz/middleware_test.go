// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/tenantguard/internal/auth"
	"github.com/tomtom215/tenantguard/internal/config"
	"github.com/tomtom215/tenantguard/internal/models"
)

const wantForbidden = `{"success":false,"error":{"code":"FORBIDDEN","message":"access denied"}}` + "\n"

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func do(ctx context.Context, h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func assertForbidden(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if got := rec.Body.String(); got != wantForbidden {
		t.Errorf("body = %q, want %q", got, wantForbidden)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestInterceptAllowsGrantedRequest(t *testing.T) {
	h := NewMiddleware(setupEngine(t, setupCatalog(t), testAuthzConfig())).Intercept(okHandler)

	rec := do(sessionCtx("tenant-a", "u-1", nil, nil), h, http.MethodGet, "/api/v1/admin/orders")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestInterceptDenyAndErrorLookIdentical(t *testing.T) {
	deny := NewMiddleware(setupEngine(t, setupCatalog(t), testAuthzConfig())).Intercept(okHandler)

	fs := &faultyStore{MemoryStore: setupCatalog(t)}
	fs.rulesDown.Store(true)
	broken := NewMiddleware(setupEngine(t, fs, testAuthzConfig())).Intercept(okHandler)

	denied := do(sessionCtx("tenant-a", "u-1", nil, nil), deny, http.MethodPost, "/api/v1/admin/orders")
	failed := do(sessionCtx("tenant-a", "u-1", nil, nil), broken, http.MethodGet, "/api/v1/admin/orders")
	anonymous := do(context.Background(), deny, http.MethodGet, "/api/v1/admin/orders")

	for name, rec := range map[string]*httptest.ResponseRecorder{"deny": denied, "error": failed, "anonymous": anonymous} {
		t.Run(name, func(t *testing.T) { assertForbidden(t, rec) })
	}
}

func TestInterceptPassesClientIP(t *testing.T) {
	s := setupCatalog(t)
	if err := s.PutPolicy(models.AbacPolicy{
		ID: "office", TenantID: "tenant-a", Resource: "orders", Action: "read", Condition: "client_ip IN 192.0.2.0/24",
	}); err != nil {
		t.Fatal(err)
	}
	h := NewMiddleware(setupEngine(t, s, testAuthzConfig())).Intercept(okHandler)

	for addr, want := range map[string]int{"192.0.2.44:5123": http.StatusOK, "198.51.100.1:5123": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil).
			WithContext(sessionCtx("tenant-a", "u-1", nil, nil))
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("from %s: status = %d, want %d", addr, rec.Code, want)
		}
	}
}

// An expired token leaves the request without a session when
// authentication is optional, and the engine refuses it.
func TestInterceptBehindSessionMiddlewareExpiredToken(t *testing.T) {
	jwtCfg := config.JWTConfig{
		Secret:     "0123456789abcdef0123456789abcdef",
		Issuer:     "tenantguard-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
	}
	past, err := auth.NewTokenCodec(jwtCfg, auth.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
	if err != nil {
		t.Fatal(err)
	}
	codec, err := auth.NewTokenCodec(jwtCfg)
	if err != nil {
		t.Fatal(err)
	}

	principal := models.Principal{UserID: "u-1", TenantID: "tenant-a"}
	expired, err := past.Encode(principal, models.TokenAccess, auth.Grants{Roles: []string{"VIEWER"}}, 15*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := codec.Encode(principal, models.TokenAccess, auth.Grants{Roles: []string{"VIEWER"}}, 15*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	sessions := auth.NewMiddleware(codec, auth.NewMemoryBlacklist(), config.SecurityConfig{JWT: jwtCfg})
	h := sessions.Authenticate(NewMiddleware(setupEngine(t, setupCatalog(t), testAuthzConfig())).Intercept(okHandler))

	call := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assertForbidden(t, call(expired))
	if rec := call(fresh); rec.Code != http.StatusOK {
		t.Errorf("fresh token: status = %d, want 200", rec.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	e := setupEngine(t, setupCatalog(t), testAuthzConfig())
	h := RequirePermission(e, "admin:orders:read")(okHandler)

	if rec := do(sessionCtx("tenant-a", "u-1", nil, nil), h, http.MethodGet, "/anything"); rec.Code != http.StatusOK {
		t.Errorf("holder: status = %d", rec.Code)
	}
	assertForbidden(t, do(sessionCtx("tenant-a", "u-3", nil, nil), h, http.MethodGet, "/anything"))
	assertForbidden(t, do(context.Background(), h, http.MethodGet, "/anything"))
}

func TestRequireRole(t *testing.T) {
	h := RequireRole("ADMIN", "EDITOR")(okHandler)

	if rec := do(sessionCtx("tenant-a", "u-2", []string{"VIEWER", "EDITOR"}, nil), h, http.MethodGet, "/"); rec.Code != http.StatusOK {
		t.Errorf("editor: status = %d", rec.Code)
	}
	assertForbidden(t, do(sessionCtx("tenant-a", "u-1", []string{"VIEWER"}, nil), h, http.MethodGet, "/"))
	assertForbidden(t, do(context.Background(), h, http.MethodGet, "/"))
}

func TestRequireAbac(t *testing.T) {
	e := setupEngine(t, setupCatalog(t), testAuthzConfig())
	h := RequireAbac(e, "orders", "write")(okHandler)

	// No role is needed, only the clearance condition.
	cleared := sessionCtx("tenant-a", "u-3", nil, map[string]string{"clearance": "5"})
	if rec := do(cleared, h, http.MethodPost, "/"); rec.Code != http.StatusOK {
		t.Errorf("cleared: status = %d", rec.Code)
	}
	assertForbidden(t, do(sessionCtx("tenant-a", "u-2", nil, map[string]string{"clearance": "2"}), h, http.MethodPost, "/"))
}
