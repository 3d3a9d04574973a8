package pg

import (
	"context"
	"database/sql"
	"errors"

	"hrops.org/internal/access"
)

// RolePermStore reads the baseline role grant matrix. The matrix is seeded by
// migrations and treated as read-only at runtime.
type RolePermStore struct {
	db *sql.DB
}

var _ access.RolePermissionSource = (*RolePermStore)(nil)

func (s *RolePermStore) HasRolePermission(ctx context.Context, role access.Role, perm access.Permission) (bool, error) {
	if s.db == nil {
		return false, errors.New("database connection unavailable")
	}
	var found bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from role_permissions
			where role = $1 and action = $2 and resource = $3
		)
	`, string(role), string(perm.Action), string(perm.Resource)).Scan(&found)
	if err != nil {
		return false, err
	}
	return found, nil
}

func (s *RolePermStore) PermissionsForRole(ctx context.Context, role access.Role) ([]access.RolePermission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select role, action, resource, scope
		from role_permissions
		where role = $1
		order by resource, action
	`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []access.RolePermission
	for rows.Next() {
		var r, action, resource, scope string
		if err := rows.Scan(&r, &action, &resource, &scope); err != nil {
			return nil, err
		}
		perms = append(perms, access.RolePermission{
			Role:     access.Role(r),
			Action:   access.Action(action),
			Resource: access.Resource(resource),
			Scope:    scope,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}
