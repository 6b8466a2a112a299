// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/tenantguard/internal/config"
	"github.com/tomtom215/tenantguard/internal/models"
)

var (
	// ErrSigningKey marks a codec that cannot sign. It is a configuration
	// failure and should stop the process rather than fail one request.
	ErrSigningKey = errors.New("token signing key misconfigured")

	ErrMissingIdentity  = errors.New("principal requires user id and tenant id")
	ErrInvalidTokenType = errors.New("token type must be ACCESS or REFRESH")
	ErrInvalidTTL       = errors.New("token ttl must be positive")
)

// Decode failure sentinels; a *DecodeError matches exactly one of them with errors.Is.
var (
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrTokenExpired     = errors.New("token expired")
	ErrMalformedToken   = errors.New("token malformed")
	ErrWrongIssuer      = errors.New("token issuer not accepted")
)

// DecodeKind classifies a decode failure.
type DecodeKind int

const (
	InvalidSignature DecodeKind = iota + 1
	Expired
	MalformedToken
	WrongIssuer
)

func (k DecodeKind) String() string {
	switch k {
	case InvalidSignature:
		return "invalid_signature"
	case Expired:
		return "expired"
	case MalformedToken:
		return "malformed"
	case WrongIssuer:
		return "wrong_issuer"
	default:
		return "unknown"
	}
}

func (k DecodeKind) sentinel() error {
	switch k {
	case InvalidSignature:
		return ErrInvalidSignature
	case Expired:
		return ErrTokenExpired
	case WrongIssuer:
		return ErrWrongIssuer
	default:
		return ErrMalformedToken
	}
}

// DecodeError is returned by TokenCodec.Decode.
type DecodeError struct {
	Kind DecodeKind
	// Cause is the underlying parser error, if any.
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind.sentinel(), e.Cause)
	}
	return e.Kind.sentinel().Error()
}

// Is lets errors.Is match the kind's sentinel.
func (e *DecodeError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// Claims is the signed token payload.
type Claims struct {
	TenantID       string            `json:"tenantId"`
	ClientID       string            `json:"clientId,omitempty"`
	TokenType      models.TokenType  `json:"tokenType"`
	Roles          []string          `json:"roles,omitempty"`
	Permissions    []string          `json:"permissions,omitempty"`
	AbacAttributes map[string]string `json:"abacAttributes,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the identity carried by the claims.
func (c *Claims) Principal() models.Principal {
	return models.Principal{UserID: c.Subject, TenantID: c.TenantID, ClientID: c.ClientID}
}

// Grants are the authorization claims embedded in access tokens.
type Grants struct {
	Roles          []string
	Permissions    []string
	AbacAttributes map[string]string
}

// TokenPair is what login and refresh return.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenCodec signs and verifies tokens with a process-wide symmetric key.
// It holds no mutable state and is safe for concurrent use.
type TokenCodec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
}

// CodecOption customizes a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

// NewTokenCodec validates the key material and returns a codec.
//
// A secret shorter than config.MinJWTSecretLength or an empty issuer is
// reported as ErrSigningKey.
func NewTokenCodec(cfg config.JWTConfig, opts ...CodecOption) (*TokenCodec, error) {
	if len(cfg.Secret) < config.MinJWTSecretLength {
		return nil, fmt.Errorf("%w: secret must be at least %d bytes", ErrSigningKey, config.MinJWTSecretLength)
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("%w: issuer is required", ErrSigningKey)
	}

	c := &TokenCodec{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		leeway:     cfg.Leeway,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issuer returns the iss value this codec writes and accepts.
func (c *TokenCodec) Issuer() string {
	return c.issuer
}

// Encode signs a token for p. Grants are dropped for REFRESH tokens.
func (c *TokenCodec) Encode(p models.Principal, tt models.TokenType, g Grants, ttl time.Duration) (string, error) {
	if p.UserID == "" || p.TenantID == "" {
		return "", ErrMissingIdentity
	}
	if !tt.Valid() {
		return "", ErrInvalidTokenType
	}
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}

	now := c.now()
	claims := Claims{
		TenantID:  p.TenantID,
		ClientID:  p.ClientID,
		TokenType: tt,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	if tt == models.TokenAccess {
		claims.Roles = slices.Clone(g.Roles)
		claims.Permissions = slices.Clone(g.Permissions)
		if len(g.AbacAttributes) > 0 {
			claims.AbacAttributes = make(map[string]string, len(g.AbacAttributes))
			for k, v := range g.AbacAttributes {
				claims.AbacAttributes[k] = v
			}
		}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningKey, err)
	}
	return signed, nil
}

// EncodePair issues an access and a refresh token using the configured TTLs.
func (c *TokenCodec) EncodePair(p models.Principal, g Grants) (*TokenPair, error) {
	access, err := c.Encode(p, models.TokenAccess, g, c.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to encode access token: %w", err)
	}
	refresh, err := c.Encode(p, models.TokenRefresh, Grants{}, c.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to encode refresh token: %w", err)
	}

	now := c.now()
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresAt:        now.Add(c.accessTTL).Truncate(time.Second),
		RefreshExpiresAt: now.Add(c.refreshTTL).Truncate(time.Second),
	}, nil
}

// Decode verifies signature, issuer and expiry and returns the claims.
// Every failure is a *DecodeError.
func (c *TokenCodec) Decode(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, &DecodeError{Kind: classifyParseError(err), Cause: err}
	}

	if claims.Subject == "" || claims.TenantID == "" || !claims.TokenType.Valid() {
		return nil, &DecodeError{Kind: MalformedToken, Cause: errors.New("missing sub, tenantId or tokenType")}
	}
	return claims, nil
}

func (c *TokenCodec) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return c.secret, nil
}

// classifyParseError maps jwt errors onto DecodeKind. The order matters:
// a token failing several checks reports the most fundamental one, and
// Expired only wins when nothing else is wrong.
func classifyParseError(err error) DecodeKind {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return MalformedToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return InvalidSignature
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return WrongIssuer
	case errors.Is(err, jwt.ErrTokenExpired):
		return Expired
	default:
		return MalformedToken
	}
}
