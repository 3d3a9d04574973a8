package org

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hrops.org/internal/access"
	"hrops.org/internal/ids"
)

// maxHierarchyDepth bounds descendant traversal. The creation invariant
// limits real trees to four tiers; anything deeper means corrupted data.
const maxHierarchyDepth = 64

// Service owns the hierarchy invariants: strict rank increase from parent to
// child, TTVH-only roots, soft-delete visibility, and the descendant
// closure used for scope filters.
type Service struct {
	store Store
	now   func() time.Time
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

// NewService constructs a Service over the unit store.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("org: store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateUnit is the input for Create.
type CreateUnit struct {
	Code     string
	Name     string
	Type     UnitType
	ParentID *string
	Address  string
	Phone    string
}

// Create validates the tier invariants and persists a new unit. Parentless
// units must be TTVH; a child's tier rank must strictly exceed its parent's.
func (s *Service) Create(ctx context.Context, input CreateUnit) (*Unit, error) {
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, fmt.Errorf("%w: unit code is required", access.ErrInvalidInput)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: unit name is required", access.ErrInvalidInput)
	}
	if !input.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown unit type %q", access.ErrInvalidInput, input.Type)
	}

	var parentID *string
	if input.ParentID != nil && strings.TrimSpace(*input.ParentID) != "" {
		trimmed := strings.TrimSpace(*input.ParentID)
		parent, err := s.Get(ctx, trimmed)
		if err != nil {
			return nil, err
		}
		if input.Type.Rank() <= parent.Type.Rank() {
			return nil, fmt.Errorf("%w: unit type %s cannot sit under %s", access.ErrInvalidInput, input.Type, parent.Type)
		}
		parentID = &trimmed
	} else if input.Type != TypeTTVH {
		return nil, fmt.Errorf("%w: parentless units must be %s", access.ErrInvalidInput, TypeTTVH)
	}

	now := s.now().UTC()
	unit := &Unit{
		ID:        ids.New(),
		Code:      code,
		Name:      name,
		Type:      input.Type,
		ParentID:  parentID,
		Address:   strings.TrimSpace(input.Address),
		Phone:     strings.TrimSpace(input.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, unit); err != nil {
		return nil, err
	}
	return unit, nil
}

// Get returns the visible unit with the given id. Tombstoned units surface
// as not found.
func (s *Service) Get(ctx context.Context, id string) (*Unit, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: unit id is required", access.ErrInvalidInput)
	}
	unit, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !unit.Visible() {
		return nil, access.ErrNotFound
	}
	return unit, nil
}

// List returns all visible units.
func (s *Service) List(ctx context.Context) ([]*Unit, error) {
	units, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	visible := units[:0]
	for _, u := range units {
		if u.Visible() {
			visible = append(visible, u)
		}
	}
	return visible, nil
}

// FindChildren returns the visible direct children of parentID.
func (s *Service) FindChildren(ctx context.Context, parentID string) ([]*Unit, error) {
	parentID = strings.TrimSpace(parentID)
	if parentID == "" {
		return nil, fmt.Errorf("%w: parent id is required", access.ErrInvalidInput)
	}
	children, err := s.store.FindChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	visible := children[:0]
	for _, c := range children {
		if c.Visible() {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

// SoftDelete tombstones a unit. Units still referenced by visible children
// or users are refused.
func (s *Service) SoftDelete(ctx context.Context, id string) (*Unit, error) {
	unit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	busy, err := s.store.HasDependents(ctx, unit.ID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, fmt.Errorf("%w: unit %s still has children or members", access.ErrConflict, unit.Code)
	}
	at := s.now().UTC()
	if err := s.store.SoftDelete(ctx, unit.ID, at); err != nil {
		return nil, err
	}
	unit.DeletedAt = &at
	return unit, nil
}

// Descendants returns the transitive closure of visible units below unitID,
// excluding unitID itself. The traversal is an explicit worklist with a
// visited set and depth guard, so a future cyclic-data bug terminates
// instead of looping.
func (s *Service) Descendants(ctx context.Context, unitID string) ([]string, error) {
	unitID = strings.TrimSpace(unitID)
	if unitID == "" {
		return nil, fmt.Errorf("%w: unit id is required", access.ErrInvalidInput)
	}

	type frame struct {
		id    string
		depth int
	}
	visited := map[string]struct{}{unitID: {}}
	stack := []frame{{id: unitID}}
	var out []string
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.depth >= maxHierarchyDepth {
			return nil, fmt.Errorf("hierarchy under %s exceeds depth %d", unitID, maxHierarchyDepth)
		}
		children, err := s.FindChildren(ctx, top.id)
		if err != nil {
			return nil, fmt.Errorf("children of %s: %w", top.id, err)
		}
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			visited[child.ID] = struct{}{}
			out = append(out, child.ID)
			stack = append(stack, frame{id: child.ID, depth: top.depth + 1})
		}
	}
	return out, nil
}
