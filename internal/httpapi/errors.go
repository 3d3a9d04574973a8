package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"hrops.org/internal/access"
	"hrops.org/internal/auth"
	"hrops.org/internal/obs"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// decodeJSON strictly decodes the request body into v and runs struct
// validation.
func (a *API) decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	if err := a.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("field %s failed %s validation", f.Field(), f.Tag())
		}
		return err
	}
	return nil
}

// writeDomainError maps service errors onto HTTP statuses. Scope denials
// arrive here already masked as not-found by the services.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, access.ErrSelfAction):
		obs.CountDenial("self_action")
		writeError(w, http.StatusConflict, "operation not permitted on own account")
	case errors.Is(err, access.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, access.ErrForbidden):
		obs.CountDenial("forbidden")
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, access.ErrNotFound):
		obs.CountDenial("not_found")
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, access.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		obs.LogError("request failed", err, nil)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
