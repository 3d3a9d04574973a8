package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"hrops.org/internal/access"
	"hrops.org/internal/audit"
	"hrops.org/internal/org"
)

type createUnitRequest struct {
	Code     string  `json:"code" validate:"required,max=32"`
	Name     string  `json:"name" validate:"required,max=255"`
	Type     string  `json:"type" validate:"required"`
	ParentID *string `json:"parent_id"`
	Address  string  `json:"address" validate:"max=500"`
	Phone    string  `json:"phone" validate:"max=32"`
}

type unitResponse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUnitResponse(u *org.Unit) unitResponse {
	return unitResponse{
		ID:        u.ID,
		Code:      u.Code,
		Name:      u.Name,
		Type:      string(u.Type),
		ParentID:  u.ParentID,
		Address:   u.Address,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// requireOrgPermission gates unit routes on the organization_units resource.
func (a *API) requireOrgPermission(w http.ResponseWriter, r *http.Request, action access.Action) (access.Session, bool) {
	session, ok := sessionOrFail(w, r)
	if !ok {
		return access.Session{}, false
	}
	allowed, err := a.engine.HasPermission(r.Context(), session, action, access.ResourceOrganizationUnits)
	if err != nil {
		writeDomainError(w, err)
		return access.Session{}, false
	}
	if !allowed {
		writeDomainError(w, access.ErrForbidden)
		return access.Session{}, false
	}
	return session, true
}

// unitInScope applies the caller's row filter to a single unit. A user-level
// session may still see its own unit.
func unitInScope(filter access.ScopeFilter, session access.Session, unitID string) bool {
	if filter.Kind == access.ScopeSelf {
		return unitID == session.OrganizationUnitID
	}
	return filter.AllowsUnit(unitID)
}

func (a *API) handleOrgUnits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleOrgUnitList(w, r)
	case http.MethodPost:
		a.handleOrgUnitCreate(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (a *API) handleOrgUnitList(w http.ResponseWriter, r *http.Request) {
	session, ok := a.requireOrgPermission(w, r, access.ActionView)
	if !ok {
		return
	}
	filter, err := a.engine.ScopeFilter(r.Context(), session)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	units, err := a.orgs.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]unitResponse, 0, len(units))
	for _, u := range units {
		if unitInScope(filter, session, u.ID) {
			out = append(out, toUnitResponse(u))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (a *API) handleOrgUnitCreate(w http.ResponseWriter, r *http.Request) {
	session, ok := a.requireOrgPermission(w, r, access.ActionCreate)
	if !ok {
		return
	}
	var req createUnitRequest
	if err := a.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	unitType, err := org.ParseUnitType(req.Type)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	unit, err := a.orgs.Create(r.Context(), org.CreateUnit{
		Code:     req.Code,
		Name:     req.Name,
		Type:     unitType,
		ParentID: req.ParentID,
		Address:  req.Address,
		Phone:    req.Phone,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	a.recorder.Record(r.Context(), session, audit.Entry{
		Action:     "org_unit.create",
		EntityType: "organization_unit",
		EntityID:   unit.ID,
		AfterData:  map[string]any{"code": unit.Code, "type": string(unit.Type)},
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/org-units/%s", unit.ID))
	writeJSON(w, http.StatusCreated, toUnitResponse(unit))
}

func (a *API) handleOrgUnitScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/org-units/"), "/")
	if path == "" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	unitID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleOrgUnit(w, r, unitID)
	case len(parts) == 2 && parts[1] == "children":
		a.handleOrgUnitChildren(w, r, unitID)
	case len(parts) == 2 && parts[1] == "descendants":
		a.handleOrgUnitDescendants(w, r, unitID)
	default:
		writeError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleOrgUnit(w http.ResponseWriter, r *http.Request, unitID string) {
	switch r.Method {
	case http.MethodGet:
		session, ok := a.requireOrgPermission(w, r, access.ActionView)
		if !ok {
			return
		}
		unit, err := a.fetchUnitInScope(w, r, session, unitID)
		if err != nil {
			return
		}
		writeJSON(w, http.StatusOK, toUnitResponse(unit))
	case http.MethodDelete:
		session, ok := a.requireOrgPermission(w, r, access.ActionDelete)
		if !ok {
			return
		}
		if _, err := a.fetchUnitInScope(w, r, session, unitID); err != nil {
			return
		}
		unit, err := a.orgs.SoftDelete(r.Context(), unitID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		a.recorder.Record(r.Context(), session, audit.Entry{
			Action:     "org_unit.delete",
			EntityType: "organization_unit",
			EntityID:   unit.ID,
			BeforeData: map[string]any{"code": unit.Code, "type": string(unit.Type)},
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, "GET, DELETE")
	}
}

// fetchUnitInScope loads a unit and verifies the caller's scope covers it,
// writing the response error itself on failure.
func (a *API) fetchUnitInScope(w http.ResponseWriter, r *http.Request, session access.Session, unitID string) (*org.Unit, error) {
	filter, err := a.engine.ScopeFilter(r.Context(), session)
	if err != nil {
		writeDomainError(w, err)
		return nil, err
	}
	unit, err := a.orgs.Get(r.Context(), unitID)
	if err != nil {
		writeDomainError(w, err)
		return nil, err
	}
	if !unitInScope(filter, session, unit.ID) {
		writeDomainError(w, access.ErrNotFound)
		return nil, access.ErrNotFound
	}
	return unit, nil
}

func (a *API) handleOrgUnitChildren(w http.ResponseWriter, r *http.Request, unitID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	session, ok := a.requireOrgPermission(w, r, access.ActionView)
	if !ok {
		return
	}
	if _, err := a.fetchUnitInScope(w, r, session, unitID); err != nil {
		return
	}
	children, err := a.orgs.FindChildren(r.Context(), unitID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]unitResponse, 0, len(children))
	for _, c := range children {
		out = append(out, toUnitResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (a *API) handleOrgUnitDescendants(w http.ResponseWriter, r *http.Request, unitID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	session, ok := a.requireOrgPermission(w, r, access.ActionView)
	if !ok {
		return
	}
	if _, err := a.fetchUnitInScope(w, r, session, unitID); err != nil {
		return
	}
	ids, err := a.orgs.Descendants(r.Context(), unitID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": ids})
}
