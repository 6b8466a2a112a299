// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package auth

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/tenantguard/internal/catalog"
	"github.com/tomtom215/tenantguard/internal/logging"
	"github.com/tomtom215/tenantguard/internal/models"
)

// staticGrants resolves the same grants for every user.
type staticGrants struct {
	roles []string
	perms []string
	err   error
}

func (g *staticGrants) ResolveGrants(_ context.Context, _, _ string) ([]string, []string, error) {
	return g.roles, g.perms, g.err
}

type issuerFixture struct {
	issuer    *Issuer
	store     *catalog.MemoryStore
	grants    *staticGrants
	blacklist *MemoryBlacklist
	codec     *TokenCodec
	logs      *bytes.Buffer
}

func setupIssuer(t *testing.T) *issuerFixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	store := catalog.NewMemoryStore()
	_ = store.PutUser(models.User{
		ID: "u-1", TenantID: "tenant-a", Username: "alice", PasswordHash: string(hash), Enabled: true,
		Attributes: map[string]string{"dept": "ops"},
	})
	_ = store.PutUser(models.User{
		ID: "u-2", TenantID: "tenant-a", Username: "mallory", PasswordHash: string(hash), Enabled: false,
	})

	f := &issuerFixture{
		store:     store,
		grants:    &staticGrants{roles: []string{"ADMIN"}, perms: []string{"orders:read"}},
		blacklist: NewMemoryBlacklist(),
		codec:     setupCodec(t),
		logs:      &bytes.Buffer{},
	}
	f.issuer = NewIssuer(store, f.grants, f.codec, f.blacklist).
		WithSecurityLogger(logging.NewSecurityLoggerWithLogger(logging.NewTestLogger(f.logs)))
	return f
}

func loginRequest(username, password string) LoginRequest {
	return LoginRequest{TenantID: "tenant-a", Username: username, Password: password, ClientID: "web"}
}

// ===== Login =====

func TestLoginIssuesGrantedPair(t *testing.T) {
	f := setupIssuer(t)

	pair, err := f.issuer.Login(context.Background(), loginRequest("alice", "s3cret-pass"), "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.TokenType != "Bearer" {
		t.Errorf("TokenType = %q", pair.TokenType)
	}

	claims, err := f.codec.Decode(pair.AccessToken)
	if err != nil {
		t.Fatalf("Decode access: %v", err)
	}
	if claims.Subject != "u-1" || claims.TenantID != "tenant-a" || claims.ClientID != "web" {
		t.Errorf("identity = %s/%s/%s", claims.Subject, claims.TenantID, claims.ClientID)
	}
	if !slices.Equal(claims.Roles, []string{"ADMIN"}) || !slices.Equal(claims.Permissions, []string{"orders:read"}) {
		t.Errorf("grants = %v %v", claims.Roles, claims.Permissions)
	}
	if claims.AbacAttributes["dept"] != "ops" {
		t.Errorf("attributes = %v", claims.AbacAttributes)
	}

	refresh, err := f.codec.Decode(pair.RefreshToken)
	if err != nil || refresh.TokenType != models.TokenRefresh || len(refresh.Roles) != 0 {
		t.Errorf("refresh = %+v, %v", refresh, err)
	}
	if !strings.Contains(f.logs.String(), "login_success") {
		t.Error("login success not logged")
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	tests := []struct {
		name   string
		req    LoginRequest
		reason string
	}{
		{"unknown user", loginRequest("nobody", "s3cret-pass"), "unknown_user"},
		{"wrong password", loginRequest("alice", "wrong-pass"), "bad_password"},
		{"disabled account", loginRequest("mallory", "s3cret-pass"), "disabled"},
		{"other tenant", LoginRequest{TenantID: "tenant-b", Username: "alice", Password: "s3cret-pass"}, "unknown_user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupIssuer(t)
			_, err := f.issuer.Login(context.Background(), tt.req, "10.0.0.1")
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("err = %v, want ErrInvalidCredentials", err)
			}
			if !strings.Contains(f.logs.String(), tt.reason) {
				t.Errorf("log missing reason %q: %s", tt.reason, f.logs.String())
			}
			if strings.Contains(f.logs.String(), tt.req.Password) {
				t.Error("password leaked into logs")
			}
		})
	}
}

func TestLoginGrantLookupFailure(t *testing.T) {
	f := setupIssuer(t)
	f.grants.err = errors.New("db down")

	_, err := f.issuer.Login(context.Background(), loginRequest("alice", "s3cret-pass"), "")
	if !errors.Is(err, ErrCredentialLookup) {
		t.Fatalf("err = %v, want ErrCredentialLookup", err)
	}
}

// ===== Refresh =====

func TestRefreshRotatesAndReResolves(t *testing.T) {
	ctx := context.Background()
	f := setupIssuer(t)

	pair, err := f.issuer.Login(ctx, loginRequest("alice", "s3cret-pass"), "")
	if err != nil {
		t.Fatal(err)
	}

	// Grants changed in the catalog since login.
	f.grants.perms = []string{"orders:read", "orders:write"}

	next, err := f.issuer.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	claims, _ := f.codec.Decode(next.AccessToken)
	if !slices.Equal(claims.Permissions, []string{"orders:read", "orders:write"}) {
		t.Errorf("refreshed permissions = %v", claims.Permissions)
	}
	if claims.ClientID != "web" {
		t.Errorf("client id not carried over: %q", claims.ClientID)
	}

	// The old refresh token is now revoked.
	if _, err := f.issuer.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("reuse err = %v, want ErrTokenRevoked", err)
	}
}

func TestRefreshRejects(t *testing.T) {
	ctx := context.Background()
	f := setupIssuer(t)
	pair, err := f.issuer.Login(ctx, loginRequest("alice", "s3cret-pass"), "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.issuer.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrNotRefreshToken) {
		t.Errorf("access token err = %v, want ErrNotRefreshToken", err)
	}
	if _, err := f.issuer.Refresh(ctx, "garbage"); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("garbage err = %v, want ErrMalformedToken", err)
	}

	// Disabling the account blocks refresh.
	_ = f.store.PutUser(models.User{ID: "u-1", TenantID: "tenant-a", Username: "alice", PasswordHash: "x", Enabled: false})
	if _, err := f.issuer.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("disabled err = %v, want ErrInvalidCredentials", err)
	}
}

// ===== Logout =====

func TestLogoutRevokesAccessAndRefresh(t *testing.T) {
	ctx := context.Background()
	f := setupIssuer(t)
	pair, _ := f.issuer.Login(ctx, loginRequest("alice", "s3cret-pass"), "")

	claims, _ := f.codec.Decode(pair.AccessToken)
	sess := NewSessionContext(claims)

	if err := f.issuer.Logout(ctx, sess, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if revoked, _ := f.blacklist.IsRevoked(ctx, sess.TokenID()); !revoked {
		t.Error("access token not revoked")
	}
	if _, err := f.issuer.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("refresh after logout err = %v", err)
	}
}

func TestLogoutRejectsForeignRefreshToken(t *testing.T) {
	ctx := context.Background()
	f := setupIssuer(t)
	pair, _ := f.issuer.Login(ctx, loginRequest("alice", "s3cret-pass"), "")

	other, err := f.codec.Encode(models.Principal{UserID: "u-9", TenantID: "tenant-a"}, models.TokenRefresh, Grants{}, f.codec.refreshTTL)
	if err != nil {
		t.Fatal(err)
	}

	claims, _ := f.codec.Decode(pair.AccessToken)
	if err := f.issuer.Logout(ctx, NewSessionContext(claims), other); !errors.Is(err, ErrTenantMismatch) {
		t.Errorf("err = %v, want ErrTenantMismatch", err)
	}
}

func TestLogoutWithoutSession(t *testing.T) {
	f := setupIssuer(t)
	if err := f.issuer.Logout(context.Background(), nil, ""); !errors.Is(err, ErrMissingIdentity) {
		t.Errorf("err = %v, want ErrMissingIdentity", err)
	}
}
