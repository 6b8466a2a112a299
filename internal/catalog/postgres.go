// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/tenantguard/internal/logging"
	"github.com/tomtom215/tenantguard/internal/metrics"
	"github.com/tomtom215/tenantguard/internal/models"
)

// NotifyChannel carries catalog change events from the database triggers.
const NotifyChannel = "tenantguard_catalog"

// Schema creates the catalog tables and the change-notification triggers.
// Every table is keyed by tenant_id first. The engine never writes these
// tables; they are maintained by whatever administers the tenants.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	tenant_id     TEXT    NOT NULL,
	id            TEXT    NOT NULL,
	username      TEXT    NOT NULL,
	password_hash TEXT    NOT NULL,
	enabled       BOOLEAN NOT NULL DEFAULT TRUE,
	attributes    JSONB   NOT NULL DEFAULT '{}',
	PRIMARY KEY (tenant_id, id),
	UNIQUE (tenant_id, username)
);

CREATE TABLE IF NOT EXISTS permissions (
	tenant_id       TEXT  NOT NULL,
	id              TEXT  NOT NULL,
	resource        TEXT  NOT NULL,
	action          TEXT  NOT NULL,
	type            TEXT  NOT NULL DEFAULT 'FUNCTIONAL',
	abac_conditions JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (tenant_id, id),
	UNIQUE (tenant_id, resource, action)
);

CREATE TABLE IF NOT EXISTS roles (
	tenant_id TEXT NOT NULL,
	id        TEXT NOT NULL,
	name      TEXT NOT NULL,
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS role_permissions (
	tenant_id     TEXT NOT NULL,
	role_id       TEXT NOT NULL,
	permission_id TEXT NOT NULL,
	PRIMARY KEY (tenant_id, role_id, permission_id)
);

CREATE TABLE IF NOT EXISTS user_roles (
	tenant_id TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	role_id   TEXT NOT NULL,
	PRIMARY KEY (tenant_id, user_id, role_id)
);

CREATE TABLE IF NOT EXISTS permission_rules (
	tenant_id  TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	pattern    TEXT    NOT NULL,
	methods    TEXT[]  NOT NULL DEFAULT '{}',
	permission TEXT    NOT NULL,
	enabled    BOOLEAN NOT NULL DEFAULT TRUE,
	priority   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS abac_policies (
	tenant_id  TEXT  NOT NULL,
	id         TEXT  NOT NULL,
	resource   TEXT  NOT NULL,
	action     TEXT  NOT NULL,
	condition  TEXT  NOT NULL DEFAULT '',
	attributes JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (tenant_id, id)
);
CREATE INDEX IF NOT EXISTS abac_policies_target ON abac_policies (tenant_id, resource, action);

CREATE OR REPLACE FUNCTION tenantguard_notify() RETURNS trigger AS $$
DECLARE
	row_data JSONB;
BEGIN
	IF TG_OP = 'DELETE' THEN
		row_data := to_jsonb(OLD);
	ELSE
		row_data := to_jsonb(NEW);
	END IF;
	PERFORM pg_notify('` + NotifyChannel + `', json_build_object(
		'kind',      TG_ARGV[0],
		'tenant_id', row_data->>'tenant_id',
		'user_id',   COALESCE(row_data->>'user_id', '')
	)::text);
	RETURN NULL;
END
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS tenantguard_users_notify ON users;
CREATE TRIGGER tenantguard_users_notify AFTER INSERT OR UPDATE OR DELETE ON users
	FOR EACH ROW EXECUTE FUNCTION tenantguard_notify('users');
DROP TRIGGER IF EXISTS tenantguard_permissions_notify ON permissions;
CREATE TRIGGER tenantguard_permissions_notify AFTER INSERT OR UPDATE OR DELETE ON permissions
	FOR EACH ROW EXECUTE FUNCTION tenantguard_notify('permissions');
DROP TRIGGER IF EXISTS tenantguard_roles_notify ON roles;
CREATE TRIGGER tenantguard_roles_notify AFTER INSERT OR UPDATE OR DELETE ON roles
	FOR EACH ROW EXECUTE FUNCTION tenantguard_notify('roles');
DROP TRIGGER IF EXISTS tenantguard_role_permissions_notify ON role_permissions;
CREATE TRIGGER tenantguard_role_permissions_notify AFTER INSERT OR UPDATE OR DELETE ON role_permissions
	FOR EACH ROW EXECUTE FUNCTION tenantguard_notify('roles');
DROP TRIGGER IF EXISTS tenantguard_user_roles_notify ON user_roles;
CREATE TRIGGER tenantguard_user_roles_notify AFTER INSERT OR UPDATE OR DELETE ON user_roles
	FOR EACH ROW EXECUTE FUNCTION tenantguard_notify('user_roles');
DROP TRIGGER IF EXISTS tenantguard_rules_notify ON permission_rules;
CREATE TRIGGER tenantguard_rules_notify AFTER INSERT OR UPDATE OR DELETE ON permission_rules
	FOR EACH ROW EXECUTE FUNCTION tenantguard_notify('rules');
DROP TRIGGER IF EXISTS tenantguard_policies_notify ON abac_policies;
CREATE TRIGGER tenantguard_policies_notify AFTER INSERT OR UPDATE OR DELETE ON abac_policies
	FOR EACH ROW EXECUTE FUNCTION tenantguard_notify('policies');
`

// querier is the subset of *pgxpool.Pool the reads need.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore reads the catalog from PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   querier

	mu        sync.RWMutex
	listeners []func(ChangeEvent)
}

// NewPostgresStore uses an existing pool. The caller closes it.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

// OpenPostgresStore connects to dsn and verifies the connection.
func OpenPostgresStore(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	logging.Info().Str("host", cfg.ConnConfig.Host).Int32("max_conns", cfg.MaxConns).Msg("Catalog connected to PostgreSQL")
	return NewPostgresStore(pool), nil
}

// EnsureSchema creates missing tables and (re)installs the triggers.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply catalog schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// observe is deferred with a pointer to the named error result.
func observe(op string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	metrics.RecordCatalogQuery("postgres", op, time.Since(start), err)
}

func (s *PostgresStore) UserRoles(ctx context.Context, tenantID, userID string) (out []models.UserRole, err error) {
	defer observe("user_roles", time.Now(), &err)

	rows, err := s.db.Query(ctx,
		`SELECT role_id FROM user_roles WHERE tenant_id = $1 AND user_id = $2 ORDER BY role_id`,
		tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user roles: %w", err)
	}
	roleIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan user roles: %w", err)
	}

	out = make([]models.UserRole, len(roleIDs))
	for i, id := range roleIDs {
		out[i] = models.UserRole{TenantID: tenantID, UserID: userID, RoleID: id}
	}
	return out, nil
}

func (s *PostgresStore) RolesByIDs(ctx context.Context, tenantID string, roleIDs []string) (out []models.Role, err error) {
	defer observe("roles", time.Now(), &err)

	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT r.id, r.name, COALESCE(array_agg(rp.permission_id ORDER BY rp.permission_id)
		       FILTER (WHERE rp.permission_id IS NOT NULL), '{}')
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.tenant_id = r.tenant_id AND rp.role_id = r.id
		WHERE r.tenant_id = $1 AND r.id = ANY($2)
		GROUP BY r.id, r.name
		ORDER BY r.id`,
		tenantID, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r := models.Role{TenantID: tenantID}
		if err := rows.Scan(&r.ID, &r.Name, &r.PermissionIDs); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const permissionColumns = `id, resource, action, type, abac_conditions`

func scanPermission(row pgx.Row, tenantID string) (models.Permission, error) {
	p := models.Permission{TenantID: tenantID}
	var (
		typ   string
		conds []byte
	)
	if err := row.Scan(&p.ID, &p.Resource, &p.Action, &typ, &conds); err != nil {
		return p, err
	}
	p.Type = models.PermissionType(typ)
	if len(conds) > 0 {
		if err := json.Unmarshal(conds, &p.AbacConditions); err != nil {
			return p, fmt.Errorf("permission %s: bad abac_conditions: %w", p.ID, err)
		}
		if len(p.AbacConditions) == 0 {
			p.AbacConditions = nil
		}
	}
	return p, nil
}

func (s *PostgresStore) PermissionsByIDs(ctx context.Context, tenantID string, permissionIDs []string) (out []models.Permission, err error) {
	defer observe("permissions", time.Now(), &err)

	if len(permissionIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE tenant_id = $1 AND id = ANY($2) ORDER BY id`,
		tenantID, permissionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPermission(rows, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PermissionByResourceAction(ctx context.Context, tenantID, resource, action string) (p *models.Permission, err error) {
	defer observe("permission_by_pair", time.Now(), &err)

	row := s.db.QueryRow(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE tenant_id = $1 AND resource = $2 AND action = $3`,
		tenantID, resource, action)
	perm, err := scanPermission(row, tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: permission %s:%s", ErrNotFound, resource, action)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query permission: %w", err)
	}
	return &perm, nil
}

func (s *PostgresStore) Rules(ctx context.Context, tenantID string) (out []models.PermissionRule, err error) {
	defer observe("rules", time.Now(), &err)

	rows, err := s.db.Query(ctx, `
		SELECT id, pattern, methods, permission, enabled, priority
		FROM permission_rules WHERE tenant_id = $1 ORDER BY id`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r := models.PermissionRule{TenantID: tenantID}
		if err := rows.Scan(&r.ID, &r.Pattern, &r.Methods, &r.Permission, &r.Enabled, &r.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Policies(ctx context.Context, tenantID, resource, action string) (out []models.AbacPolicy, err error) {
	defer observe("policies", time.Now(), &err)

	rows, err := s.db.Query(ctx, `
		SELECT id, condition, attributes
		FROM abac_policies WHERE tenant_id = $1 AND resource = $2 AND action = $3 ORDER BY id`,
		tenantID, resource, action)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := models.AbacPolicy{TenantID: tenantID, Resource: resource, Action: action}
		var attrs []byte
		if err := rows.Scan(&p.ID, &p.Condition, &attrs); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		if err := json.Unmarshal(attrs, &p.Attributes); err != nil {
			return nil, fmt.Errorf("policy %s: bad attributes: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const userColumns = `id, username, password_hash, enabled, attributes`

func (s *PostgresStore) scanUser(row pgx.Row, tenantID string) (*models.User, error) {
	u := models.User{TenantID: tenantID}
	var attrs []byte
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Enabled, &attrs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(attrs, &u.Attributes); err != nil {
		return nil, fmt.Errorf("user %s: bad attributes: %w", u.ID, err)
	}
	return &u, nil
}

func (s *PostgresStore) UserByUsername(ctx context.Context, tenantID, username string) (u *models.User, err error) {
	defer observe("user_by_username", time.Now(), &err)

	u, err = s.scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND username = $2`,
		tenantID, username), tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %q", ErrNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) UserByID(ctx context.Context, tenantID, userID string) (u *models.User, err error) {
	defer observe("user_by_id", time.Now(), &err)

	u, err = s.scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND id = $2`,
		tenantID, userID), tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

// ===== Change notifications =====

type notifyPayload struct {
	Kind     ChangeKind `json:"kind"`
	TenantID string     `json:"tenant_id"`
	UserID   string     `json:"user_id"`
}

func (s *PostgresStore) Subscribe(fn func(ChangeEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *PostgresStore) dispatch(ev ChangeEvent) {
	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Listen holds one pool connection in LISTEN mode and dispatches trigger
// notifications to subscribers until ctx is done or the connection fails.
// ready, when non-nil, runs once LISTEN is in effect and before the first
// notification is dispatched.
func (s *PostgresStore) Listen(ctx context.Context, ready func()) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}
	logging.Info().Str("channel", NotifyChannel).Msg("Listening for catalog changes")
	if ready != nil {
		ready()
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("catalog notification wait failed: %w", err)
		}

		var payload notifyPayload
		if err := json.Unmarshal([]byte(n.Payload), &payload); err != nil {
			logging.Warn().Err(err).Str("payload", n.Payload).Msg("Ignoring malformed catalog notification")
			continue
		}
		ev := ChangeEvent{Kind: payload.Kind, TenantID: payload.TenantID}
		if payload.Kind == ChangeUserRoles {
			ev.UserID = payload.UserID
		}
		s.dispatch(ev)
	}
}
