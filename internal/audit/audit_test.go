package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"hrops.org/internal/access"
	"hrops.org/internal/obs"
)

type stubStore struct {
	appended []Entry
	err      error
}

func (s *stubStore) Append(_ context.Context, entry *Entry) error {
	if s.err != nil {
		return s.err
	}
	s.appended = append(s.appended, *entry)
	return nil
}

func (s *stubStore) List(_ context.Context, _ Filter) ([]Entry, uint64, error) {
	return s.appended, 0, s.err
}

func adminSession() access.Session {
	return access.Session{UserID: "u-adm", Role: access.RoleAdmin, RoleLevel: 0, OrganizationUnitID: "ttvh-hq"}
}

func TestRecordAttributesActorAndMeta(t *testing.T) {
	store := &stubStore{}
	rec, err := NewRecorder(store, WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	}))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	ctx := ContextWithMeta(context.Background(), RequestMeta{
		RequestID: "req-1", IPAddress: "10.0.0.7", UserAgent: "portal-web",
	})
	rec.Record(ctx, adminSession(), Entry{
		Action:     "org_unit.delete",
		EntityType: "organization_unit",
		EntityID:   "bcp-dh",
		BeforeData: map[string]any{"code": "BCP-DH"},
	})

	if len(store.appended) != 1 {
		t.Fatalf("expected one entry, got %d", len(store.appended))
	}
	got := store.appended[0]
	if got.ID == "" {
		t.Fatal("entry id must be assigned")
	}
	if got.ActorID != "u-adm" || got.ActorRole != access.RoleAdmin {
		t.Fatalf("actor not attributed: %+v", got)
	}
	if got.IPAddress != "10.0.0.7" || got.UserAgent != "portal-web" {
		t.Fatalf("request meta not attached: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at must be stamped")
	}
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	store := &stubStore{err: errors.New("disk full")}
	rec, err := NewRecorder(store)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	// Must not panic, must not propagate.
	rec.Record(context.Background(), adminSession(), Entry{
		Action: "grant.create", EntityType: "user_permission", EntityID: "p-1",
	})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("failure log not valid JSON: %v", err)
	}
	if line["msg"] != "audit append failed" {
		t.Fatalf("unexpected log line: %v", line)
	}
	if line["error"] != "disk full" {
		t.Fatalf("error missing from log: %v", line)
	}
}

func TestListClampsLimit(t *testing.T) {
	store := &stubStore{}
	rec, err := NewRecorder(store)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if _, _, err := rec.List(context.Background(), Filter{Limit: -5}); err != nil {
		t.Fatalf("List: %v", err)
	}
}
