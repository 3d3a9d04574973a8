package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"hrops.org/internal/access"
	"hrops.org/internal/audit"
	"hrops.org/internal/directory"
	"hrops.org/internal/grant"
	"hrops.org/internal/obs"
	"hrops.org/internal/org"
)

// ReadyProbe reports whether the backing database answers.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// PermissionChecker is the part of the access engine the handlers consult
// directly.
type PermissionChecker interface {
	HasPermission(ctx context.Context, session access.Session, action access.Action, resource access.Resource) (bool, error)
	ScopeFilter(ctx context.Context, session access.Session) (access.ScopeFilter, error)
}

// DirectoryService is the slice of the directory the HTTP layer needs.
type DirectoryService interface {
	Authenticate(ctx context.Context, email string) (*directory.User, error)
	Get(ctx context.Context, session access.Session, userID string) (*directory.User, error)
	List(ctx context.Context, session access.Session) ([]*directory.User, error)
	Delete(ctx context.Context, session access.Session, userID string) error
	UpdateRole(ctx context.Context, session access.Session, userID string, role access.Role) (*directory.User, error)
}

// OrgService manages the unit hierarchy.
type OrgService interface {
	Create(ctx context.Context, input org.CreateUnit) (*org.Unit, error)
	Get(ctx context.Context, id string) (*org.Unit, error)
	List(ctx context.Context) ([]*org.Unit, error)
	FindChildren(ctx context.Context, parentID string) ([]*org.Unit, error)
	SoftDelete(ctx context.Context, id string) (*org.Unit, error)
	Descendants(ctx context.Context, unitID string) ([]string, error)
}

// GrantService manages user-level permission overrides.
type GrantService interface {
	Grant(ctx context.Context, session access.Session, input grant.Input) (*grant.UserPermission, bool, error)
	Revoke(ctx context.Context, session access.Session, permissionID string) error
	List(ctx context.Context, session access.Session, userID string) ([]grant.EffectivePermission, error)
}

// AuditReader pages through the audit trail.
type AuditReader interface {
	List(ctx context.Context, filter audit.Filter) ([]audit.Entry, uint64, error)
}

// Deps bundles everything the API needs.
type Deps struct {
	Engine    PermissionChecker
	Directory DirectoryService
	Orgs      OrgService
	Grants    GrantService
	AuditLog  AuditReader
	Recorder  *audit.Recorder
	Ready     ReadyProbe
	Version   string
	TokenTTL  time.Duration
}

// API is the HTTP layer. Routing is a plain ServeMux with manual subpath
// parsing; every business decision lives in the services behind it.
type API struct {
	mux        *http.ServeMux
	engine     PermissionChecker
	directory  DirectoryService
	orgs       OrgService
	grants     GrantService
	auditLog   AuditReader
	recorder   *audit.Recorder
	validate   *validator.Validate
	readyProbe ReadyProbe
	version    string
	tokenTTL   time.Duration
}

func New(deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		engine:     deps.Engine,
		directory:  deps.Directory,
		orgs:       deps.Orgs,
		grants:     deps.Grants,
		auditLog:   deps.AuditLog,
		recorder:   deps.Recorder,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		readyProbe: deps.Ready,
		version:    deps.Version,
		tokenTTL:   deps.TokenTTL,
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 30 * time.Minute
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/session", a.handleSession)
	a.mux.HandleFunc("/v1/org-units", a.handleOrgUnits)
	a.mux.HandleFunc("/v1/org-units/", a.handleOrgUnitScoped)
	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserScoped)
	a.mux.HandleFunc("/v1/permissions/", a.handlePermissionScoped)
	a.mux.HandleFunc("/v1/audit-logs", a.handleAuditLogs)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the instrumented handler with authentication applied.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "hrops-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "hrops-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
