// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package catalog

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/tenantguard/internal/logging"
	"github.com/tomtom215/tenantguard/internal/models"
	"github.com/tomtom215/tenantguard/internal/validation"
)

// ErrInvalidSeed wraps every seed parse, validation and reference error.
var ErrInvalidSeed = errors.New("invalid catalog seed")

// SeedUser is a user record in a seed file. Either Password (hashed on
// load) or PasswordHash (bcrypt) must be set.
type SeedUser struct {
	ID           string            `json:"id" validate:"required"`
	TenantID     string            `json:"tenant_id" validate:"required"`
	Username     string            `json:"username" validate:"required"`
	Password     string            `json:"password,omitempty" validate:"required_without=PasswordHash"`
	PasswordHash string            `json:"password_hash,omitempty"`
	Enabled      bool              `json:"enabled"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// Seed is the JSON document loaded into a MemoryStore.
//
//	{
//	  "permissions": [{"id": "p1", "tenant_id": "acme", "resource": "orders", "action": "read", "type": "FUNCTIONAL"}],
//	  "roles":       [{"id": "r1", "tenant_id": "acme", "name": "ADMIN", "permission_ids": ["p1"]}],
//	  "users":       [{"id": "u1", "tenant_id": "acme", "username": "alice", "password": "...", "enabled": true}],
//	  "user_roles":  [{"tenant_id": "acme", "user_id": "u1", "role_id": "r1"}],
//	  "rules":       [{"id": "x1", "tenant_id": "acme", "pattern": "/api/v1/admin/orders/**", "permission": "admin:orders:read", "enabled": true}],
//	  "policies":    [{"id": "a1", "tenant_id": "acme", "resource": "orders", "action": "read", "condition": "user.dept == resource.dept", "attributes": {"dept": "ops"}}]
//	}
type Seed struct {
	Permissions []models.Permission     `json:"permissions" validate:"dive"`
	Roles       []models.Role           `json:"roles" validate:"dive"`
	Users       []SeedUser              `json:"users" validate:"dive"`
	UserRoles   []models.UserRole       `json:"user_roles" validate:"dive"`
	Rules       []models.PermissionRule `json:"rules" validate:"dive"`
	Policies    []models.AbacPolicy     `json:"policies" validate:"dive"`
}

// ParseSeed decodes and validates a seed document, including references
// between records. Nothing is written anywhere.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	if err := validation.Validate(&seed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	if err := seed.checkReferences(); err != nil {
		return nil, err
	}
	return &seed, nil
}

type tenantKey struct{ tenant, id string }

func (s *Seed) checkReferences() error {
	perms := make(map[tenantKey]bool, len(s.Permissions))
	for _, p := range s.Permissions {
		perms[tenantKey{p.TenantID, p.ID}] = true
	}
	roles := make(map[tenantKey]bool, len(s.Roles))
	for _, r := range s.Roles {
		roles[tenantKey{r.TenantID, r.ID}] = true
		for _, pid := range r.PermissionIDs {
			if !perms[tenantKey{r.TenantID, pid}] {
				return fmt.Errorf("%w: role %s references unknown permission %s in tenant %s", ErrInvalidSeed, r.ID, pid, r.TenantID)
			}
		}
	}
	users := make(map[tenantKey]bool, len(s.Users))
	for _, u := range s.Users {
		users[tenantKey{u.TenantID, u.ID}] = true
	}
	for _, ur := range s.UserRoles {
		if !roles[tenantKey{ur.TenantID, ur.RoleID}] {
			return fmt.Errorf("%w: assignment references unknown role %s in tenant %s", ErrInvalidSeed, ur.RoleID, ur.TenantID)
		}
		// Users without a login record may still hold grants.
		if len(s.Users) > 0 && !users[tenantKey{ur.TenantID, ur.UserID}] {
			logging.Warn().Str("tenant_id", ur.TenantID).Str("user_id", ur.UserID).Msg("Seed assigns a role to a user with no login record")
		}
	}
	return nil
}

// Apply writes the seed into store. Permissions go first so the
// (resource, action) uniqueness check runs before anything references them.
func (s *Seed) Apply(store *MemoryStore, bcryptCost int) error {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}

	for _, p := range s.Permissions {
		if p.Type == "" {
			p.Type = models.PermissionFunctional
		}
		if err := store.PutPermission(p); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSeed, err)
		}
	}
	for _, r := range s.Roles {
		if err := store.PutRole(r); err != nil {
			return err
		}
	}
	for _, u := range s.Users {
		hash := u.PasswordHash
		if hash == "" {
			b, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcryptCost)
			if err != nil {
				return fmt.Errorf("failed to hash password for %s: %w", u.ID, err)
			}
			hash = string(b)
		}
		err := store.PutUser(models.User{
			ID:           u.ID,
			TenantID:     u.TenantID,
			Username:     u.Username,
			PasswordHash: hash,
			Enabled:      u.Enabled,
			Attributes:   u.Attributes,
		})
		if err != nil {
			return err
		}
	}
	for _, ur := range s.UserRoles {
		if err := store.AssignRole(ur); err != nil {
			return err
		}
	}
	for _, r := range s.Rules {
		if err := store.PutRule(r); err != nil {
			return err
		}
	}
	for _, p := range s.Policies {
		if err := store.PutPolicy(p); err != nil {
			return err
		}
	}
	return nil
}

// LoadSeedFile parses the file at path and applies it to store.
func LoadSeedFile(path string, store *MemoryStore, bcryptCost int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return err
	}
	if err := seed.Apply(store, bcryptCost); err != nil {
		return err
	}

	logging.Info().
		Str("path", path).
		Int("permissions", len(seed.Permissions)).
		Int("roles", len(seed.Roles)).
		Int("users", len(seed.Users)).
		Int("rules", len(seed.Rules)).
		Int("policies", len(seed.Policies)).
		Msg("Catalog seed loaded")
	return nil
}
