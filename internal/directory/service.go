package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hrops.org/internal/access"
	"hrops.org/internal/audit"
)

// Service applies the engine's decisions to directory reads and mutations.
// Out-of-scope targets surface as not found so that a denied lookup cannot
// be distinguished from a missing one.
type Service struct {
	store  Store
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
func NewService(store Store, engine *access.Engine, recorder *audit.Recorder, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("directory: store is required")
	}
	if engine == nil {
		return nil, errors.New("directory: access engine is required")
	}
	if recorder == nil {
		return nil, errors.New("directory: audit recorder is required")
	}
	s := &Service{store: store, engine: engine, audit: recorder, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Authenticate resolves a visible user by email for credential checks. It is
// the only read that bypasses scope (login happens before a session exists).
func (s *Service) Authenticate(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", access.ErrInvalidInput)
	}
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !user.Visible() {
		return nil, access.ErrNotFound
	}
	return user, nil
}

// Get returns a user the session may see. Self access is always allowed;
// everything else needs View on Users plus management scope, and a target
// outside the caller's scope reads as not found.
func (s *Service) Get(ctx context.Context, session access.Session, userID string) (*User, error) {
	user, err := s.visible(ctx, userID)
	if err != nil {
		return nil, err
	}
	ok, err := s.engine.CanAccessUser(ctx, session, user.ID, user.OrganizationUnitID, user.Role, access.ActionView)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, access.ErrNotFound
	}
	return user, nil
}

// List returns the users inside the session's scope. Sessions whose scope is
// broader than self additionally need View on Users.
func (s *Service) List(ctx context.Context, session access.Session) ([]*User, error) {
	filter, err := s.engine.ScopeFilter(ctx, session)
	if err != nil {
		return nil, err
	}
	if filter.Kind != access.ScopeSelf {
		ok, err := s.engine.HasPermission(ctx, session, access.ActionView, access.ResourceUsers)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, access.ErrForbidden
		}
	}
	users, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	visible := users[:0]
	for _, u := range users {
		if u.Visible() {
			visible = append(visible, u)
		}
	}
	return visible, nil
}

// Delete tombstones a user account. Deleting the acting account is rejected
// outright, before any role or scope consideration.
func (s *Service) Delete(ctx context.Context, session access.Session, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == session.UserID {
		return access.ErrSelfAction
	}
	ok, err := s.engine.HasPermission(ctx, session, access.ActionDelete, access.ResourceUsers)
	if err != nil {
		return err
	}
	if !ok {
		return access.ErrForbidden
	}
	user, err := s.visible(ctx, userID)
	if err != nil {
		return err
	}
	manage, err := s.engine.CanManageUser(ctx, session, user.OrganizationUnitID, user.Role)
	if err != nil {
		return err
	}
	if !manage {
		return access.ErrNotFound
	}
	at := s.now().UTC()
	if err := s.store.SoftDelete(ctx, user.ID, at); err != nil {
		return err
	}
	s.audit.Record(ctx, session, audit.Entry{
		Action:     "user.delete",
		EntityType: "user",
		EntityID:   user.ID,
		BeforeData: map[string]any{"email": user.Email, "role": string(user.Role)},
	})
	return nil
}

// UpdateRole changes a user's role. Demoting the acting account is rejected
// outright; otherwise the caller needs Update on Users and management scope
// over the target.
func (s *Service) UpdateRole(ctx context.Context, session access.Session, userID string, role access.Role) (*User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", access.ErrInvalidInput, role)
	}
	userID = strings.TrimSpace(userID)
	if userID == session.UserID && role.Level() > session.RoleLevel {
		return nil, access.ErrSelfAction
	}
	ok, err := s.engine.HasPermission(ctx, session, access.ActionUpdate, access.ResourceUsers)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, access.ErrForbidden
	}
	user, err := s.visible(ctx, userID)
	if err != nil {
		return nil, err
	}
	manage, err := s.engine.CanManageUser(ctx, session, user.OrganizationUnitID, user.Role)
	if err != nil {
		return nil, err
	}
	if !manage {
		return nil, access.ErrNotFound
	}
	before := user.Role
	at := s.now().UTC()
	if err := s.store.UpdateRole(ctx, user.ID, role, at); err != nil {
		return nil, err
	}
	user.Role = role
	user.UpdatedAt = at
	s.audit.Record(ctx, session, audit.Entry{
		Action:     "user.role.update",
		EntityType: "user",
		EntityID:   user.ID,
		BeforeData: map[string]any{"role": string(before)},
		AfterData:  map[string]any{"role": string(role)},
	})
	return user, nil
}

func (s *Service) visible(ctx context.Context, userID string) (*User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", access.ErrInvalidInput)
	}
	user, err := s.store.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Visible() {
		return nil, access.ErrNotFound
	}
	return user, nil
}
