package access

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RolePermission is one row of the baseline grant matrix. Scope is persisted
// for reporting but never consumed by the engine: scope filters derive from
// role and organizational position, not from this column.
type RolePermission struct {
	Role     Role
	Action   Action
	Resource Resource
	Scope    string
}

// RolePermissionSource reads the baseline grant matrix.
type RolePermissionSource interface {
	HasRolePermission(ctx context.Context, role Role, perm Permission) (bool, error)
	PermissionsForRole(ctx context.Context, role Role) ([]RolePermission, error)
}

// OverrideSource reads user-level permission overrides. Implementations must
// treat a row with expires_at in the past as absent.
type OverrideSource interface {
	HasLiveOverride(ctx context.Context, userID string, perm Permission, now time.Time) (bool, error)
}

// HierarchySource resolves the transitive descendants of an organization
// unit (excluding the unit itself).
type HierarchySource interface {
	Descendants(ctx context.Context, unitID string) ([]string, error)
}

// Engine answers the two authorization questions every request poses: may
// this session perform an action on a resource, and which rows may it see.
// All methods are pure reads and fail closed: any lookup error yields a deny
// alongside the error.
type Engine struct {
	roles     RolePermissionSource
	overrides OverrideSource
	hierarchy HierarchySource
	now       func() time.Time
}

// EngineOption configures Engine behavior.
type EngineOption func(*Engine)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// NewEngine constructs an Engine over the three read sources.
func NewEngine(roles RolePermissionSource, overrides OverrideSource, hierarchy HierarchySource, opts ...EngineOption) (*Engine, error) {
	if roles == nil {
		return nil, errors.New("access: role permission source is required")
	}
	if overrides == nil {
		return nil, errors.New("access: override source is required")
	}
	if hierarchy == nil {
		return nil, errors.New("access: hierarchy source is required")
	}
	e := &Engine{roles: roles, overrides: overrides, hierarchy: hierarchy, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// HasPermission reports whether the session may perform action on resource.
// Role-derived permissions win first; otherwise a live user-level override
// can supplement. There is no negative override: a role-derived permission
// cannot be subtracted per user.
func (e *Engine) HasPermission(ctx context.Context, session Session, action Action, resource Resource) (bool, error) {
	if err := session.Validate(); err != nil {
		return false, err
	}
	perm, err := NewPermission(action, resource)
	if err != nil {
		// Unrecognized pair: plain deny, not an internal error.
		return false, nil
	}
	ok, err := e.roles.HasRolePermission(ctx, session.Role, perm)
	if err != nil {
		return false, fmt.Errorf("role permission lookup: %w", err)
	}
	if ok {
		return true, nil
	}
	ok, err = e.overrides.HasLiveOverride(ctx, session.UserID, perm, e.now().UTC())
	if err != nil {
		return false, fmt.Errorf("override lookup: %w", err)
	}
	return ok, nil
}

// ScopeFilter computes the row filter for the session. Admin sees
// everything; Manager and Leader see their unit plus its transitive
// descendants; User sees only rows they own.
func (e *Engine) ScopeFilter(ctx context.Context, session Session) (ScopeFilter, error) {
	if err := session.Validate(); err != nil {
		return ScopeFilter{}, err
	}
	switch session.Role {
	case RoleAdmin:
		return Unrestricted(), nil
	case RoleManager, RoleLeader:
		descendants, err := e.hierarchy.Descendants(ctx, session.OrganizationUnitID)
		if err != nil {
			return ScopeFilter{}, fmt.Errorf("resolve descendants of %s: %w", session.OrganizationUnitID, err)
		}
		units := make([]string, 0, len(descendants)+1)
		units = append(units, session.OrganizationUnitID)
		units = append(units, descendants...)
		return OrgUnitScope(units), nil
	case RoleUser:
		return SelfScope(session.UserID), nil
	default:
		return ScopeFilter{}, fmt.Errorf("%w: role %q has no scope contract", ErrForbidden, session.Role)
	}
}

// CanManageUser reports whether the session may administer a user sitting in
// targetUnitID with targetRole. The target must be inside the session's
// scope, and must be strictly less privileged unless the caller is Admin.
func (e *Engine) CanManageUser(ctx context.Context, session Session, targetUnitID string, targetRole Role) (bool, error) {
	filter, err := e.ScopeFilter(ctx, session)
	if err != nil {
		return false, err
	}
	switch filter.Kind {
	case ScopeUnrestricted:
		// fall through to the level rule
	case ScopeOrgUnits:
		if !filter.AllowsUnit(targetUnitID) {
			return false, nil
		}
	default:
		// Self scope manages nobody.
		return false, nil
	}
	if session.Role == RoleAdmin {
		return true, nil
	}
	if targetRole.Level() < session.RoleLevel+1 {
		return false, nil
	}
	return true, nil
}

// CanAccessUser reports whether the session may perform action on the target
// user's record. Self access is always allowed (view or update of the own
// profile); anything else requires the Users permission plus management
// scope over the target.
func (e *Engine) CanAccessUser(ctx context.Context, session Session, targetUserID, targetUnitID string, targetRole Role, action Action) (bool, error) {
	if targetUserID == session.UserID {
		return true, nil
	}
	ok, err := e.HasPermission(ctx, session, action, ResourceUsers)
	if err != nil || !ok {
		return false, err
	}
	return e.CanManageUser(ctx, session, targetUnitID, targetRole)
}
