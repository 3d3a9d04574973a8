package directory

import (
	"context"
	"time"

	"hrops.org/internal/access"
	"hrops.org/internal/org"
)

// User is a portal account. Role and organizational position drive every
// authorization decision; the record itself is otherwise plain directory
// data.
type User struct {
	ID                   string
	Email                string
	FullName             string
	PasswordHash         string
	Role                 access.Role
	OrganizationUnitID   string
	OrganizationUnitType org.UnitType
	org.Lifecycle
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session derives the request identity carried in tokens for this user.
func (u *User) Session() access.Session {
	return access.Session{
		UserID:               u.ID,
		Role:                 u.Role,
		RoleLevel:            u.Role.Level(),
		OrganizationUnitID:   u.OrganizationUnitID,
		OrganizationUnitType: string(u.OrganizationUnitType),
	}
}

// Store describes persistence for users. Absent rows map to
// access.ErrNotFound; soft-deleted rows are returned as-is (visibility is
// the service's job). List applies the scope filter inside the query.
type Store interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, filter access.ScopeFilter) ([]*User, error)
	UpdateRole(ctx context.Context, id string, role access.Role, at time.Time) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}
