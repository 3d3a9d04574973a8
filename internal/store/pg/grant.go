package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hrops.org/internal/access"
	"hrops.org/internal/grant"
)

// GrantStore persists user-level permission overrides. It doubles as the
// engine's override source.
type GrantStore struct {
	db *sql.DB
}

var (
	_ grant.Store           = (*GrantStore)(nil)
	_ access.OverrideSource = (*GrantStore)(nil)
)

const grantColumns = `id, user_id, action, resource, granted_by, granted_at, expires_at, coalesce(reason,'')`

// Upsert inserts or refreshes the override in one statement. The unique index
// on (user_id, action, resource) makes a re-grant update grantor, timestamps,
// expiry and reason in place; xmax = 0 distinguishes a fresh insert.
func (s *GrantStore) Upsert(ctx context.Context, p *grant.UserPermission) (bool, error) {
	if s.db == nil {
		return false, errors.New("database connection unavailable")
	}
	var (
		created bool
		id      string
	)
	err := s.db.QueryRowContext(ctx, `
		insert into user_permissions (id, user_id, action, resource, granted_by, granted_at, expires_at, reason)
		values ($1, $2, $3, $4, $5, $6, $7, nullif($8,''))
		on conflict (user_id, action, resource) do update
		set granted_by = excluded.granted_by,
		    granted_at = excluded.granted_at,
		    expires_at = excluded.expires_at,
		    reason     = excluded.reason
		returning id, (xmax = 0)
	`, p.ID, p.UserID, string(p.Action), string(p.Resource), p.GrantedByID, p.GrantedAt, nullTime(p.ExpiresAt), p.Reason).Scan(&id, &created)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return false, access.ErrNotFound
		}
		return false, err
	}
	p.ID = id
	return created, nil
}

func (s *GrantStore) Find(ctx context.Context, id string) (*grant.UserPermission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+grantColumns+`
		from user_permissions
		where id = $1
	`, id)
	return scanGrant(row)
}

func (s *GrantStore) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from user_permissions where id = $1`, id)
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

func (s *GrantStore) ListForUser(ctx context.Context, userID string) ([]grant.UserPermission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+grantColumns+`
		from user_permissions
		where user_id = $1
		order by resource, action
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []grant.UserPermission
	for rows.Next() {
		p, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// HasLiveOverride checks expiry in the query itself, so an expired row is
// indistinguishable from an absent one.
func (s *GrantStore) HasLiveOverride(ctx context.Context, userID string, perm access.Permission, now time.Time) (bool, error) {
	if s.db == nil {
		return false, errors.New("database connection unavailable")
	}
	var found bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from user_permissions
			where user_id = $1 and action = $2 and resource = $3
			  and (expires_at is null or expires_at > $4)
		)
	`, userID, string(perm.Action), string(perm.Resource), now).Scan(&found)
	if err != nil {
		return false, err
	}
	return found, nil
}

func scanGrant(row rowScanner) (*grant.UserPermission, error) {
	var (
		p         grant.UserPermission
		action    string
		resource  string
		expiresAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.UserID, &action, &resource, &p.GrantedByID, &p.GrantedAt, &expiresAt, &p.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Action = access.Action(action)
	p.Resource = access.Resource(resource)
	if expiresAt.Valid {
		t := expiresAt.Time
		p.ExpiresAt = &t
	}
	return &p, nil
}
