package grant

import (
	"context"
	"time"

	"hrops.org/internal/access"
)

// UserPermission is an individually granted, optionally time-bound
// permission layered on top of a user's role. Overrides only ever add: a
// role-derived permission cannot be subtracted per user.
type UserPermission struct {
	ID          string
	UserID      string
	Action      access.Action
	Resource    access.Resource
	GrantedByID string
	GrantedAt   time.Time
	ExpiresAt   *time.Time
	Reason      string
}

// Live reports whether the override is in force at the given instant.
// Expired rows stay in storage but are inert.
func (p UserPermission) Live(now time.Time) bool {
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}

// Origin tags where an effective permission comes from.
type Origin string

const (
	OriginRole     Origin = "role"
	OriginOverride Origin = "override"
)

// EffectivePermission is one entry of a user's combined permission set,
// tagged so callers can tell role-derived rows from overrides.
type EffectivePermission struct {
	Action      access.Action
	Resource    access.Resource
	Origin      Origin
	Scope       string
	GrantedByID string
	GrantedAt   time.Time
	ExpiresAt   *time.Time
	Reason      string
}

// Store persists user-level overrides. Upsert must be atomic on the unique
// (user_id, action, resource) key: a re-grant updates the existing row in
// place and reports created=false.
type Store interface {
	Upsert(ctx context.Context, p *UserPermission) (created bool, err error)
	Find(ctx context.Context, id string) (*UserPermission, error)
	Delete(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string) ([]UserPermission, error)
}
