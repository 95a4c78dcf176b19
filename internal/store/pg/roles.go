package pg

import (
	"context"
	"database/sql"
	"errors"

	"shutterdesk.app/internal/auth"
	"shutterdesk.app/internal/ids"
)

var _ auth.RoleStore = (*RoleStore)(nil)

// RoleStore implements auth.RoleStore on PostgreSQL.
type RoleStore struct {
	db *sql.DB
}

// NewRoleStore constructs a RoleStore on an open handle.
func NewRoleStore(db *sql.DB) *RoleStore {
	return &RoleStore{db: db}
}

func (s *RoleStore) CreateRole(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into roles(id, name, description) values($1, $2, nullif($3, ''))`,
		role.ID, role.Name, role.Description,
	)
	if isUniqueViolation(err) {
		return auth.ErrDuplicateIdentity
	}
	return err
}

func (s *RoleStore) FindRoleByName(ctx context.Context, name string) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, coalesce(description, ''), created_at, updated_at from roles where name = $1`, name)
	var role auth.Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (s *RoleStore) RolesOf(ctx context.Context, userID string) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select r.id, r.name, coalesce(r.description, ''), r.created_at, r.updated_at
		 from roles r join user_roles ur on ur.role_id = r.id
		 where ur.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *RoleStore) PermissionsOf(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select p.key from permissions p
		 join role_permissions rp on rp.permission_id = p.id
		 where rp.role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *RoleStore) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_roles(user_id, role_id) values($1, $2) on conflict do nothing`,
		userID, roleID)
	return err
}

func (s *RoleStore) UnassignRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from user_roles where user_id = $1 and role_id = $2`, userID, roleID)
	return err
}

func (s *RoleStore) SetRolePermissions(ctx context.Context, roleID string, keys []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, key := range keys {
		_, err := tx.ExecContext(ctx,
			`insert into role_permissions(role_id, permission_id)
			 select $1, id from permissions where key = $2`, roleID, key)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *RoleStore) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	for _, p := range perms {
		if p.ID == "" {
			p.ID = ids.New()
		}
		_, err := s.db.ExecContext(ctx,
			`insert into permissions(id, key, description) values($1, $2, nullif($3, ''))
			 on conflict (key) do nothing`,
			p.ID, p.Key, p.Description)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *RoleStore) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, key, coalesce(description, ''), created_at from permissions order by key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Key, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
