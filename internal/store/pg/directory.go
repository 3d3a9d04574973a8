package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"hrops.org/internal/access"
	"hrops.org/internal/directory"
	"hrops.org/internal/org"
)

// UserStore persists directory accounts.
type UserStore struct {
	db *sql.DB
}

var _ directory.Store = (*UserStore)(nil)

const userColumns = `u.id, u.email, u.full_name, u.password_hash, u.role, u.organization_unit_id, ou.type, u.deleted_at, u.created_at, u.updated_at`

const userFrom = `
	from users u
	join organization_units ou on ou.id = u.organization_unit_id`

func (s *UserStore) Find(ctx context.Context, id string) (*directory.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+userFrom+`
		where u.id = $1
	`, id)
	return scanUser(row)
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*directory.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+userFrom+`
		where lower(u.email) = lower($1)
	`, email)
	return scanUser(row)
}

// List applies the scope filter inside the query so a branch manager's page
// never loads rows from foreign subtrees.
func (s *UserStore) List(ctx context.Context, filter access.ScopeFilter) ([]*directory.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	query := `select ` + userColumns + userFrom
	var args []any
	switch filter.Kind {
	case access.ScopeUnrestricted:
		// no restriction
	case access.ScopeOrgUnits:
		if len(filter.UnitIDs) == 0 {
			return nil, nil
		}
		placeholders := make([]string, len(filter.UnitIDs))
		for i, id := range filter.UnitIDs {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, id)
		}
		query += `
		where u.organization_unit_id in (` + strings.Join(placeholders, ", ") + `)`
	case access.ScopeSelf:
		query += `
		where u.id = $1`
		args = append(args, filter.UserID)
	default:
		return nil, fmt.Errorf("%w: unsupported scope kind %d", access.ErrInvalidInput, filter.Kind)
	}
	query += `
		order by u.email`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*directory.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *UserStore) UpdateRole(ctx context.Context, id string, role access.Role, at time.Time) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set role = $2, updated_at = $3
		where id = $1 and deleted_at is null
	`, id, string(role), at)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return access.ErrNotFound
	}
	return nil
}

func (s *UserStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set deleted_at = $2, updated_at = $2
		where id = $1 and deleted_at is null
	`, id, at)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return access.ErrNotFound
	}
	return nil
}

func scanUser(row rowScanner) (*directory.User, error) {
	var (
		user      directory.User
		role      string
		unitType  string
		deletedAt sql.NullTime
	)
	err := row.Scan(&user.ID, &user.Email, &user.FullName, &user.PasswordHash, &role, &user.OrganizationUnitID, &unitType, &deletedAt, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.Role = access.Role(role)
	user.OrganizationUnitType = org.UnitType(unitType)
	if deletedAt.Valid {
		t := deletedAt.Time
		user.DeletedAt = &t
	}
	return &user, nil
}
