package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"hrops.org/internal/access"
	"hrops.org/internal/ids"
	"hrops.org/internal/obs"
)

// Entry is one append-only audit record: who did what to which entity, with
// optional before/after snapshots. Entries are write-once; the application
// never updates or deletes them.
type Entry struct {
	ID         string
	Sequence   uint64
	ActorID    string
	ActorRole  access.Role
	Action     string
	EntityType string
	EntityID   string
	BeforeData map[string]any
	AfterData  map[string]any
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	From       time.Time
	To         time.Time
	AfterSeq   uint64
	Limit      int
}

// Store appends and reads immutable entries.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, uint64, error)
}

// RequestMeta carries per-request attribution the HTTP layer knows and the
// services do not.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

type metaContextKey struct{}

// ContextWithMeta attaches request metadata for later audit records.
func ContextWithMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, metaContextKey{}, meta)
}

// MetaFromContext returns request metadata placed by the HTTP layer.
func MetaFromContext(ctx context.Context) (RequestMeta, bool) {
	if ctx == nil {
		return RequestMeta{}, false
	}
	meta, ok := ctx.Value(metaContextKey{}).(RequestMeta)
	return meta, ok
}

// Recorder writes audit entries best-effort. A failed write is logged and
// swallowed: the audit trail accepts gaps under storage failure rather than
// blocking the primary operation.
type Recorder struct {
	store Store
	now   func() time.Time
}

// RecorderOption configures Recorder behavior.
type RecorderOption func(*Recorder)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder over the entry store.
func NewRecorder(store Store, opts ...RecorderOption) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit: store is required")
	}
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record appends an entry attributed to the actor. It never returns an
// error to the caller.
func (r *Recorder) Record(ctx context.Context, actor access.Session, entry Entry) {
	if strings.TrimSpace(entry.Action) == "" {
		r.logFailure(entry, errors.New("action is required"))
		return
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	entry.ActorID = actor.UserID
	entry.ActorRole = actor.Role
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	if meta, ok := MetaFromContext(ctx); ok {
		if entry.IPAddress == "" {
			entry.IPAddress = meta.IPAddress
		}
		if entry.UserAgent == "" {
			entry.UserAgent = meta.UserAgent
		}
	}
	if err := r.store.Append(ctx, &entry); err != nil {
		r.logFailure(entry, err)
	}
}

// List is the thin paginated read over the trail. Authorization is the
// caller's concern.
func (r *Recorder) List(ctx context.Context, filter Filter) ([]Entry, uint64, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	return r.store.List(ctx, filter)
}

func (r *Recorder) logFailure(entry Entry, err error) {
	line := map[string]any{
		"ts":     r.now().UTC().Format(time.RFC3339Nano),
		"level":  "error",
		"msg":    "audit append failed",
		"action": entry.Action,
		"actor":  entry.ActorID,
		"entity": entry.EntityType + "/" + entry.EntityID,
		"error":  err.Error(),
	}
	data, merr := json.Marshal(line)
	if merr != nil {
		obs.Logger().Println(`{"level":"error","msg":"audit append failed"}`)
		return
	}
	obs.Logger().Println(string(data))
}
