package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hrops.org/internal/access"
	"hrops.org/internal/org"
)

// OrgStore persists organization units.
type OrgStore struct {
	db *sql.DB
}

var _ org.Store = (*OrgStore)(nil)

const orgUnitColumns = `id, code, name, type, parent_id, coalesce(address,''), coalesce(phone,''), deleted_at, created_at, updated_at`

func (s *OrgStore) Create(ctx context.Context, unit *org.Unit) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into organization_units (id, code, name, type, parent_id, address, phone)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, unit.ID, unit.Code, unit.Name, string(unit.Type), unit.ParentID, nullIfEmpty(unit.Address), nullIfEmpty(unit.Phone))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return access.ErrConflict
			case pgErrForeignKeyViolation:
				return access.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *OrgStore) Find(ctx context.Context, id string) (*org.Unit, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+orgUnitColumns+`
		from organization_units
		where id = $1
	`, id)
	return scanUnit(row)
}

func (s *OrgStore) List(ctx context.Context) ([]*org.Unit, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+orgUnitColumns+`
		from organization_units
		order by code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUnits(rows)
}

func (s *OrgStore) FindChildren(ctx context.Context, parentID string) ([]*org.Unit, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+orgUnitColumns+`
		from organization_units
		where parent_id = $1
		order by code
	`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUnits(rows)
}

// HasDependents reports whether any visible child unit or visible user still
// points at the unit. Tombstoned rows do not block deletion.
func (s *OrgStore) HasDependents(ctx context.Context, id string) (bool, error) {
	if s.db == nil {
		return false, errors.New("database connection unavailable")
	}
	var found bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from organization_units where parent_id = $1 and deleted_at is null
			union all
			select 1 from users where organization_unit_id = $1 and deleted_at is null
		)
	`, id).Scan(&found)
	if err != nil {
		return false, err
	}
	return found, nil
}

func (s *OrgStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update organization_units
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnit(row rowScanner) (*org.Unit, error) {
	var (
		unit      org.Unit
		unitType  string
		parentID  sql.NullString
		deletedAt sql.NullTime
	)
	err := row.Scan(&unit.ID, &unit.Code, &unit.Name, &unitType, &parentID, &unit.Address, &unit.Phone, &deletedAt, &unit.CreatedAt, &unit.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	unit.Type = org.UnitType(unitType)
	if parentID.Valid {
		unit.ParentID = &parentID.String
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		unit.DeletedAt = &t
	}
	return &unit, nil
}

func collectUnits(rows *sql.Rows) ([]*org.Unit, error) {
	var units []*org.Unit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}
