package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"hrops.org/internal/access"
	"hrops.org/internal/audit"
	"hrops.org/internal/org"
)

type stubRoles struct {
	allow map[access.Role][]string
}

func (s *stubRoles) HasRolePermission(_ context.Context, role access.Role, perm access.Permission) (bool, error) {
	for _, key := range s.allow[role] {
		if key == perm.Key() {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRoles) PermissionsForRole(_ context.Context, _ access.Role) ([]access.RolePermission, error) {
	return nil, nil
}

type stubOverrides struct{}

func (stubOverrides) HasLiveOverride(_ context.Context, _ string, _ access.Permission, _ time.Time) (bool, error) {
	return false, nil
}

type stubHierarchy struct {
	children map[string][]string
}

func (s *stubHierarchy) Descendants(_ context.Context, unitID string) ([]string, error) {
	var out []string
	queue := append([]string(nil), s.children[unitID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)
		queue = append(queue, s.children[id]...)
	}
	return out, nil
}

type memStore struct {
	users map[string]*User
}

func (m *memStore) Find(_ context.Context, id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, access.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, access.ErrNotFound
}

func (m *memStore) List(_ context.Context, filter access.ScopeFilter) ([]*User, error) {
	var out []*User
	for _, u := range m.users {
		if filter.AllowsUser(u.ID, u.OrganizationUnitID) {
			copied := *u
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memStore) UpdateRole(_ context.Context, id string, role access.Role, at time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return access.ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = at
	return nil
}

func (m *memStore) SoftDelete(_ context.Context, id string, at time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return access.ErrNotFound
	}
	u.DeletedAt = &at
	return nil
}

type auditSink struct {
	entries []audit.Entry
}

func (a *auditSink) Append(_ context.Context, entry *audit.Entry) error {
	a.entries = append(a.entries, *entry)
	return nil
}

func (a *auditSink) List(_ context.Context, _ audit.Filter) ([]audit.Entry, uint64, error) {
	return a.entries, 0, nil
}

// Fixture: TTVH root, two provincial branches, one district branch with a
// department under the first branch.
//
//	ttvh-hq
//	├── bcvh-hn ── bcp-dh ── dept-kt
//	└── bcvh-sg
func newFixture(t *testing.T) (*Service, *memStore, *auditSink) {
	t.Helper()
	roles := &stubRoles{allow: map[access.Role][]string{
		access.RoleAdmin: {
			"view:users", "create:users", "update:users", "delete:users",
		},
		access.RoleManager: {"view:users", "update:users", "delete:users"},
	}}
	hierarchy := &stubHierarchy{children: map[string][]string{
		"ttvh-hq": {"bcvh-hn", "bcvh-sg"},
		"bcvh-hn": {"bcp-dh"},
		"bcp-dh":  {"dept-kt"},
	}}
	engine, err := access.NewEngine(roles, stubOverrides{}, hierarchy)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	store := &memStore{users: map[string]*User{
		"u-adm": {ID: "u-adm", Email: "admin@hrops.org", Role: access.RoleAdmin, OrganizationUnitID: "ttvh-hq", OrganizationUnitType: org.TypeTTVH},
		"u-mgr": {ID: "u-mgr", Email: "mgr.hn@hrops.org", Role: access.RoleManager, OrganizationUnitID: "bcvh-hn", OrganizationUnitType: org.TypeBCVH},
		"u-ldr": {ID: "u-ldr", Email: "ldr.dh@hrops.org", Role: access.RoleLeader, OrganizationUnitID: "bcp-dh", OrganizationUnitType: org.TypeBCP},
		"u-usr": {ID: "u-usr", Email: "nv.kt@hrops.org", Role: access.RoleUser, OrganizationUnitID: "dept-kt", OrganizationUnitType: org.TypeDepartment},
		"u-out": {ID: "u-out", Email: "nv.sg@hrops.org", Role: access.RoleUser, OrganizationUnitID: "bcvh-sg", OrganizationUnitType: org.TypeBCVH},
	}}
	sink := &auditSink{}
	recorder, err := audit.NewRecorder(sink)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	svc, err := NewService(store, engine, recorder)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, sink
}

func sessionFor(store *memStore, id string) access.Session {
	return store.users[id].Session()
}

func TestDeleteSelfRejected(t *testing.T) {
	svc, store, _ := newFixture(t)
	err := svc.Delete(context.Background(), sessionFor(store, "u-adm"), "u-adm")
	if !errors.Is(err, access.ErrSelfAction) {
		t.Fatalf("expected ErrSelfAction, got %v", err)
	}
	if store.users["u-adm"].Deleted() {
		t.Fatal("self delete must not tombstone the account")
	}
}

func TestUpdateRoleSelfDemotionRejected(t *testing.T) {
	svc, store, _ := newFixture(t)
	_, err := svc.UpdateRole(context.Background(), sessionFor(store, "u-mgr"), "u-mgr", access.RoleUser)
	if !errors.Is(err, access.ErrSelfAction) {
		t.Fatalf("expected ErrSelfAction, got %v", err)
	}
	if store.users["u-mgr"].Role != access.RoleManager {
		t.Fatal("self demotion must not change the role")
	}
}

func TestDeleteWithoutPermissionForbidden(t *testing.T) {
	svc, store, _ := newFixture(t)
	err := svc.Delete(context.Background(), sessionFor(store, "u-ldr"), "u-usr")
	if !errors.Is(err, access.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestDeleteOutOfScopeReadsAsNotFound(t *testing.T) {
	svc, store, _ := newFixture(t)
	// u-out sits in the Saigon branch, outside the Hanoi manager's subtree.
	err := svc.Delete(context.Background(), sessionFor(store, "u-mgr"), "u-out")
	if !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.users["u-out"].Deleted() {
		t.Fatal("out-of-scope target must be untouched")
	}
}

func TestDeleteInScopeTombstonesAndAudits(t *testing.T) {
	svc, store, sink := newFixture(t)
	if err := svc.Delete(context.Background(), sessionFor(store, "u-mgr"), "u-usr"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !store.users["u-usr"].Deleted() {
		t.Fatal("target must be tombstoned")
	}
	if len(sink.entries) != 1 || sink.entries[0].Action != "user.delete" {
		t.Fatalf("expected one user.delete audit entry, got %+v", sink.entries)
	}
	if sink.entries[0].ActorID != "u-mgr" {
		t.Fatalf("audit actor mismatch: %+v", sink.entries[0])
	}

	// The tombstoned account now reads as not found even for an admin.
	if _, err := svc.Get(context.Background(), sessionFor(store, "u-adm"), "u-usr"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for tombstoned user, got %v", err)
	}
}

func TestGetSelfAlwaysAllowed(t *testing.T) {
	svc, store, _ := newFixture(t)
	got, err := svc.Get(context.Background(), sessionFor(store, "u-usr"), "u-usr")
	if err != nil {
		t.Fatalf("Get self: %v", err)
	}
	if got.ID != "u-usr" {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestGetOutOfScopeReadsAsNotFound(t *testing.T) {
	svc, store, _ := newFixture(t)
	if _, err := svc.Get(context.Background(), sessionFor(store, "u-mgr"), "u-out"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRequiresViewForBroadScopes(t *testing.T) {
	svc, store, _ := newFixture(t)
	// Leaders carry no baseline view:users in this fixture.
	if _, err := svc.List(context.Background(), sessionFor(store, "u-ldr")); !errors.Is(err, access.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestListScopesRows(t *testing.T) {
	svc, store, _ := newFixture(t)

	users, err := svc.List(context.Background(), sessionFor(store, "u-mgr"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	ids := map[string]bool{}
	for _, u := range users {
		ids[u.ID] = true
	}
	if len(ids) != 3 || !ids["u-mgr"] || !ids["u-ldr"] || !ids["u-usr"] {
		t.Fatalf("manager list must cover the Hanoi subtree, got %v", ids)
	}

	// Plain users see only themselves, no view:users needed.
	users, err = svc.List(context.Background(), sessionFor(store, "u-usr"))
	if err != nil {
		t.Fatalf("List self scope: %v", err)
	}
	if len(users) != 1 || users[0].ID != "u-usr" {
		t.Fatalf("self scope must return only the caller, got %+v", users)
	}
}

func TestUpdateRoleInScopeAudited(t *testing.T) {
	svc, store, sink := newFixture(t)
	got, err := svc.UpdateRole(context.Background(), sessionFor(store, "u-mgr"), "u-usr", access.RoleLeader)
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if got.Role != access.RoleLeader || store.users["u-usr"].Role != access.RoleLeader {
		t.Fatal("role change must persist")
	}
	if len(sink.entries) != 1 || sink.entries[0].Action != "user.role.update" {
		t.Fatalf("expected one user.role.update entry, got %+v", sink.entries)
	}
	if sink.entries[0].BeforeData["role"] != string(access.RoleUser) || sink.entries[0].AfterData["role"] != string(access.RoleLeader) {
		t.Fatalf("before/after mismatch: %+v", sink.entries[0])
	}
}

func TestUpdateRolePeerLevelReadsAsNotFound(t *testing.T) {
	svc, store, _ := newFixture(t)
	// A manager cannot administer another manager: same level, not strictly
	// below.
	store.users["u-mgr2"] = &User{
		ID: "u-mgr2", Email: "mgr2.hn@hrops.org", Role: access.RoleManager,
		OrganizationUnitID: "bcp-dh", OrganizationUnitType: org.TypeBCP,
	}
	if _, err := svc.UpdateRole(context.Background(), sessionFor(store, "u-mgr"), "u-mgr2", access.RoleUser); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuthenticateNormalizesEmail(t *testing.T) {
	svc, _, _ := newFixture(t)
	got, err := svc.Authenticate(context.Background(), "  Admin@hrops.org ")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != "u-adm" {
		t.Fatalf("unexpected user: %+v", got)
	}
}
