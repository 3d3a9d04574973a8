package grant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hrops.org/internal/access"
	"hrops.org/internal/audit"
	"hrops.org/internal/directory"
	"hrops.org/internal/ids"
)

// UserSource resolves grant targets and owners.
type UserSource interface {
	Find(ctx context.Context, id string) (*directory.User, error)
}

// Service manages user-level permission overrides, enforcing the
// management-scope check before every mutation. Revocation exists only for
// overrides; there is no API that strips a role-derived permission.
type Service struct {
	store  Store
	users  UserSource
	roles  access.RolePermissionSource
	engine *access.Engine
	audit  *audit.Recorder
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, users UserSource, roles access.RolePermissionSource, engine *access.Engine, recorder *audit.Recorder, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("grant: store is required")
	}
	if users == nil {
		return nil, errors.New("grant: user source is required")
	}
	if roles == nil {
		return nil, errors.New("grant: role permission source is required")
	}
	if engine == nil {
		return nil, errors.New("grant: access engine is required")
	}
	if recorder == nil {
		return nil, errors.New("grant: audit recorder is required")
	}
	s := &Service{store: store, users: users, roles: roles, engine: engine, audit: recorder, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Input describes a grant request.
type Input struct {
	UserID    string
	Action    access.Action
	Resource  access.Resource
	Reason    string
	ExpiresAt *time.Time
}

// Grant upserts an override for (userID, action, resource). Only Admin and
// Manager sessions may grant, and only over users they manage. A second
// grant for the same triple overwrites grantor, timestamps, expiry and
// reason instead of duplicating the row. The returned flag reports whether
// the row was freshly created.
func (s *Service) Grant(ctx context.Context, session access.Session, input Input) (*UserPermission, bool, error) {
	if session.Role != access.RoleAdmin && session.Role != access.RoleManager {
		return nil, false, access.ErrForbidden
	}
	perm, err := access.NewPermission(input.Action, input.Resource)
	if err != nil {
		return nil, false, err
	}
	target, err := s.manageableUser(ctx, session, input.UserID)
	if err != nil {
		return nil, false, err
	}

	p := &UserPermission{
		ID:          ids.New(),
		UserID:      target.ID,
		Action:      perm.Action,
		Resource:    perm.Resource,
		GrantedByID: session.UserID,
		GrantedAt:   s.now().UTC(),
		ExpiresAt:   input.ExpiresAt,
		Reason:      strings.TrimSpace(input.Reason),
	}
	created, err := s.store.Upsert(ctx, p)
	if err != nil {
		return nil, false, err
	}

	action := "grant.update"
	if created {
		action = "grant.create"
	}
	after := map[string]any{
		"user_id":    p.UserID,
		"permission": perm.Key(),
		"reason":     p.Reason,
	}
	if p.ExpiresAt != nil {
		after["expires_at"] = p.ExpiresAt.UTC().Format(time.RFC3339)
	}
	s.audit.Record(ctx, session, audit.Entry{
		Action:     action,
		EntityType: "user_permission",
		EntityID:   p.ID,
		AfterData:  after,
	})
	return p, created, nil
}

// Revoke deletes an override by id. The caller must manage the override's
// owner. Role-derived permissions are not reachable here by construction.
func (s *Service) Revoke(ctx context.Context, session access.Session, permissionID string) error {
	if session.Role != access.RoleAdmin && session.Role != access.RoleManager {
		return access.ErrForbidden
	}
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return fmt.Errorf("%w: permission id is required", access.ErrInvalidInput)
	}
	p, err := s.store.Find(ctx, permissionID)
	if err != nil {
		return err
	}
	if _, err := s.manageableUser(ctx, session, p.UserID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, p.ID); err != nil {
		return err
	}
	before := map[string]any{
		"user_id":    p.UserID,
		"permission": access.Permission{Action: p.Action, Resource: p.Resource}.Key(),
	}
	s.audit.Record(ctx, session, audit.Entry{
		Action:     "grant.revoke",
		EntityType: "user_permission",
		EntityID:   p.ID,
		BeforeData: before,
	})
	return nil
}

// List returns the target's effective permission set: role-derived rows and
// live overrides, each tagged with its origin. The caller needs View on
// Users and management scope over the target; a user may always list their
// own set.
func (s *Service) List(ctx context.Context, session access.Session, userID string) ([]EffectivePermission, error) {
	userID = strings.TrimSpace(userID)
	var target *directory.User
	if userID == session.UserID {
		var err error
		target, err = s.visibleUser(ctx, userID)
		if err != nil {
			return nil, err
		}
	} else {
		ok, err := s.engine.HasPermission(ctx, session, access.ActionView, access.ResourceUsers)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, access.ErrForbidden
		}
		target, err = s.manageableUser(ctx, session, userID)
		if err != nil {
			return nil, err
		}
	}

	rolePerms, err := s.roles.PermissionsForRole(ctx, target.Role)
	if err != nil {
		return nil, err
	}
	overrides, err := s.store.ListForUser(ctx, target.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	out := make([]EffectivePermission, 0, len(rolePerms)+len(overrides))
	for _, rp := range rolePerms {
		out = append(out, EffectivePermission{
			Action:   rp.Action,
			Resource: rp.Resource,
			Origin:   OriginRole,
			Scope:    rp.Scope,
		})
	}
	for _, o := range overrides {
		if !o.Live(now) {
			continue
		}
		out = append(out, EffectivePermission{
			Action:      o.Action,
			Resource:    o.Resource,
			Origin:      OriginOverride,
			GrantedByID: o.GrantedByID,
			GrantedAt:   o.GrantedAt,
			ExpiresAt:   o.ExpiresAt,
			Reason:      o.Reason,
		})
	}
	return out, nil
}

func (s *Service) visibleUser(ctx context.Context, userID string) (*directory.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", access.ErrInvalidInput)
	}
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Visible() {
		return nil, access.ErrNotFound
	}
	return user, nil
}

// manageableUser loads a visible user and verifies management scope. An
// out-of-scope target reads as not found so existence does not leak across
// scope boundaries.
func (s *Service) manageableUser(ctx context.Context, session access.Session, userID string) (*directory.User, error) {
	user, err := s.visibleUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ok, err := s.engine.CanManageUser(ctx, session, user.OrganizationUnitID, user.Role)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, access.ErrNotFound
	}
	return user, nil
}
