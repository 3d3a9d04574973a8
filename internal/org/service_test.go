package org

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"hrops.org/internal/access"
)

type memStore struct {
	units      map[string]*Unit
	dependents map[string]bool
}

func newMemStore() *memStore {
	return &memStore{units: map[string]*Unit{}, dependents: map[string]bool{}}
}

func (m *memStore) Create(_ context.Context, unit *Unit) error {
	for _, u := range m.units {
		if u.Code == unit.Code {
			return access.ErrConflict
		}
	}
	cp := *unit
	m.units[unit.ID] = &cp
	return nil
}

func (m *memStore) Find(_ context.Context, id string) (*Unit, error) {
	u, ok := m.units[id]
	if !ok {
		return nil, access.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) List(_ context.Context) ([]*Unit, error) {
	var out []*Unit
	for _, u := range m.units {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) FindChildren(_ context.Context, parentID string) ([]*Unit, error) {
	var out []*Unit
	for _, u := range m.units {
		if u.ParentID != nil && *u.ParentID == parentID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) HasDependents(_ context.Context, id string) (bool, error) {
	if m.dependents[id] {
		return true, nil
	}
	children, _ := m.FindChildren(context.Background(), id)
	for _, c := range children {
		if c.Visible() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) SoftDelete(_ context.Context, id string, at time.Time) error {
	u, ok := m.units[id]
	if !ok {
		return access.ErrNotFound
	}
	u.DeletedAt = &at
	return nil
}

func (m *memStore) add(id, code string, typ UnitType, parentID *string) {
	m.units[id] = &Unit{ID: id, Code: code, Name: code, Type: typ, ParentID: parentID}
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func strPtr(s string) *string { return &s }

func TestCreateEnforcesTierOrdering(t *testing.T) {
	store := newMemStore()
	store.add("bcp-1", "BCP-DH", TypeBCP, nil)
	svc := newTestService(t, store)

	// BCP under BCP: rank must strictly increase.
	_, err := svc.Create(context.Background(), CreateUnit{
		Code: "BCP-X", Name: "X", Type: TypeBCP, ParentID: strPtr("bcp-1"),
	})
	if !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	// Equal-or-higher tier under a lower one is also rejected.
	_, err = svc.Create(context.Background(), CreateUnit{
		Code: "TTVH-X", Name: "X", Type: TypeTTVH, ParentID: strPtr("bcp-1"),
	})
	if !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	// DEPARTMENT under BCP is fine.
	unit, err := svc.Create(context.Background(), CreateUnit{
		Code: "DEP-1", Name: "Dep", Type: TypeDepartment, ParentID: strPtr("bcp-1"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if unit.ID == "" || unit.Type != TypeDepartment {
		t.Fatalf("unexpected unit %+v", unit)
	}
}

func TestCreateRejectsNonTTVHRoot(t *testing.T) {
	svc := newTestService(t, newMemStore())
	_, err := svc.Create(context.Background(), CreateUnit{Code: "BCVH-CG", Name: "CG", Type: TypeBCVH})
	if !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := svc.Create(context.Background(), CreateUnit{Code: "TTVH-HQ", Name: "HQ", Type: TypeTTVH}); err != nil {
		t.Fatalf("TTVH root must be allowed: %v", err)
	}
}

func TestCreateDuplicateCodeConflicts(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	if _, err := svc.Create(context.Background(), CreateUnit{Code: "TTVH-HQ", Name: "HQ", Type: TypeTTVH}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := svc.Create(context.Background(), CreateUnit{Code: "TTVH-HQ", Name: "Again", Type: TypeTTVH})
	if !errors.Is(err, access.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestGetHidesTombstonedUnits(t *testing.T) {
	store := newMemStore()
	store.add("u1", "TTVH-HQ", TypeTTVH, nil)
	at := time.Now().UTC()
	store.units["u1"].DeletedAt = &at
	svc := newTestService(t, store)

	_, err := svc.Get(context.Background(), "u1")
	if !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("deleted unit must read as not found, got %v", err)
	}
}

func TestSoftDeleteRefusedWithDependents(t *testing.T) {
	store := newMemStore()
	store.add("a", "TTVH-HQ", TypeTTVH, nil)
	store.add("b", "BCVH-CG", TypeBCVH, strPtr("a"))
	svc := newTestService(t, store)

	_, err := svc.SoftDelete(context.Background(), "a")
	if !errors.Is(err, access.ErrConflict) {
		t.Fatalf("expected conflict while children exist, got %v", err)
	}

	unit, err := svc.SoftDelete(context.Background(), "b")
	if err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if !unit.Deleted() {
		t.Fatal("unit must be tombstoned")
	}
}

func TestDescendantsClosure(t *testing.T) {
	store := newMemStore()
	store.add("A", "BCVH-CG", TypeBCVH, nil)
	store.add("B", "BCP-DH", TypeBCP, strPtr("A"))
	store.add("C", "BCP-NT", TypeBCP, strPtr("A"))
	store.add("D", "DEP-1", TypeDepartment, strPtr("B"))
	svc := newTestService(t, store)

	got, err := svc.Descendants(context.Background(), "A")
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	want := map[string]bool{"B": true, "C": true, "D": true}
	if len(got) != len(want) {
		t.Fatalf("expected {B,C,D}, got %v", got)
	}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("unexpected descendant %s", id)
		}
	}

	leaf, err := svc.Descendants(context.Background(), "D")
	if err != nil {
		t.Fatalf("Descendants(leaf): %v", err)
	}
	if len(leaf) != 0 {
		t.Fatalf("leaf must have no descendants, got %v", leaf)
	}
}

func TestDescendantsSkipsTombstonedBranches(t *testing.T) {
	store := newMemStore()
	store.add("A", "BCVH-CG", TypeBCVH, nil)
	store.add("B", "BCP-DH", TypeBCP, strPtr("A"))
	at := time.Now().UTC()
	store.units["B"].DeletedAt = &at
	svc := newTestService(t, store)

	got, err := svc.Descendants(context.Background(), "A")
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("tombstoned child must not appear, got %v", got)
	}
}

func TestDescendantsTerminatesOnCycle(t *testing.T) {
	// Corrupted data: A -> B -> A. The visited set must stop the walk.
	store := newMemStore()
	store.add("A", "X-A", TypeBCVH, strPtr("B"))
	store.add("B", "X-B", TypeBCP, strPtr("A"))
	svc := newTestService(t, store)

	got, err := svc.Descendants(context.Background(), "A")
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	if len(got) != 1 || got[0] != "B" {
		t.Fatalf("expected just B, got %v", got)
	}
}

func TestDescendantsDepthGuard(t *testing.T) {
	store := newMemStore()
	store.add("n0", "C-0", TypeTTVH, nil)
	for i := 1; i <= maxHierarchyDepth+1; i++ {
		parent := fmt.Sprintf("n%d", i-1)
		store.add(fmt.Sprintf("n%d", i), fmt.Sprintf("C-%d", i), TypeDepartment, &parent)
	}
	svc := newTestService(t, store)

	if _, err := svc.Descendants(context.Background(), "n0"); err == nil {
		t.Fatal("expected depth guard to fire")
	}
}
