package httpapi

import (
	"net/http"
	"time"

	"hrops.org/internal/audit"
	"hrops.org/internal/auth"
	"hrops.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleLogin(w, r)
	case http.MethodDelete:
		a.handleLogout(w, r)
	default:
		methodNotAllowed(w, "POST, DELETE")
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := a.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.directory.Authenticate(r.Context(), req.Email)
	if err != nil {
		// A wrong email and a wrong password read identically.
		obs.CountDenial("bad_credentials")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		obs.CountDenial("bad_credentials")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	session := user.Session()
	token, err := auth.GenerateToken(session, a.tokenTTL)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	a.recorder.Record(r.Context(), session, audit.Entry{
		Action:     "session.login",
		EntityType: "user",
		EntityID:   user.ID,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(a.tokenTTL),
		User:      toUserResponse(user),
	})
}

// handleLogout only audits: tokens are stateless and expire on their own.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionOrFail(w, r)
	if !ok {
		return
	}
	a.recorder.Record(r.Context(), session, audit.Entry{
		Action:     "session.logout",
		EntityType: "user",
		EntityID:   session.UserID,
	})
	w.WriteHeader(http.StatusNoContent)
}
