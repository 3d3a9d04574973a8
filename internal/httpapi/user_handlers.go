package httpapi

import (
	"net/http"
	"strings"
	"time"

	"hrops.org/internal/access"
	"hrops.org/internal/directory"
	"hrops.org/internal/grant"
)

type userResponse struct {
	ID                   string    `json:"id"`
	Email                string    `json:"email"`
	FullName             string    `json:"full_name,omitempty"`
	Role                 string    `json:"role"`
	OrganizationUnitID   string    `json:"organization_unit_id"`
	OrganizationUnitType string    `json:"organization_unit_type,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func toUserResponse(u *directory.User) userResponse {
	return userResponse{
		ID:                   u.ID,
		Email:                u.Email,
		FullName:             u.FullName,
		Role:                 string(u.Role),
		OrganizationUnitID:   u.OrganizationUnitID,
		OrganizationUnitType: string(u.OrganizationUnitType),
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

type grantRequest struct {
	Action    string     `json:"action" validate:"required"`
	Resource  string     `json:"resource" validate:"required"`
	Reason    string     `json:"reason" validate:"max=500"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type grantResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Action      string     `json:"action"`
	Resource    string     `json:"resource"`
	GrantedByID string     `json:"granted_by_id"`
	GrantedAt   time.Time  `json:"granted_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

func toGrantResponse(p *grant.UserPermission) grantResponse {
	return grantResponse{
		ID:          p.ID,
		UserID:      p.UserID,
		Action:      string(p.Action),
		Resource:    string(p.Resource),
		GrantedByID: p.GrantedByID,
		GrantedAt:   p.GrantedAt,
		ExpiresAt:   p.ExpiresAt,
		Reason:      p.Reason,
	}
}

type effectivePermissionResponse struct {
	Action      string     `json:"action"`
	Resource    string     `json:"resource"`
	Origin      string     `json:"origin"`
	Scope       string     `json:"scope,omitempty"`
	GrantedByID string     `json:"granted_by_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	session, ok := sessionOrFail(w, r)
	if !ok {
		return
	}
	users, err := a.directory.List(r.Context(), session)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleUser(w, r, userID)
	case len(parts) == 2 && parts[1] == "role":
		a.handleUserRole(w, r, userID)
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleUserPermissions(w, r, userID)
	default:
		writeError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request, userID string) {
	session, ok := sessionOrFail(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		user, err := a.directory.Get(r.Context(), session, userID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(user))
	case http.MethodDelete:
		if err := a.directory.Delete(r.Context(), session, userID); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, "GET, DELETE")
	}
}

func (a *API) handleUserRole(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, "PUT")
		return
	}
	session, ok := sessionOrFail(w, r)
	if !ok {
		return
	}
	var req updateRoleRequest
	if err := a.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	role, err := access.ParseRole(req.Role)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	user, err := a.directory.UpdateRole(r.Context(), session, userID, role)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (a *API) handleUserPermissions(w http.ResponseWriter, r *http.Request, userID string) {
	session, ok := sessionOrFail(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		perms, err := a.grants.List(r.Context(), session, userID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out := make([]effectivePermissionResponse, 0, len(perms))
		for _, p := range perms {
			out = append(out, effectivePermissionResponse{
				Action:      string(p.Action),
				Resource:    string(p.Resource),
				Origin:      string(p.Origin),
				Scope:       p.Scope,
				GrantedByID: p.GrantedByID,
				ExpiresAt:   p.ExpiresAt,
				Reason:      p.Reason,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out})
	case http.MethodPost:
		var req grantRequest
		if err := a.decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		action, err := access.ParseAction(req.Action)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resource, err := access.ParseResource(req.Resource)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		p, created, err := a.grants.Grant(r.Context(), session, grant.Input{
			UserID:    userID,
			Action:    action,
			Resource:  resource,
			Reason:    req.Reason,
			ExpiresAt: req.ExpiresAt,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, toGrantResponse(p))
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (a *API) handlePermissionScoped(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, "DELETE")
		return
	}
	session, ok := sessionOrFail(w, r)
	if !ok {
		return
	}
	permissionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/permissions/"), "/")
	if permissionID == "" || strings.Contains(permissionID, "/") {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if err := a.grants.Revoke(r.Context(), session, permissionID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
