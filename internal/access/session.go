package access

import (
	"context"
	"fmt"
	"strings"
)

// Session is the authenticated caller identity for one request. It is built
// once when the bearer token is verified and then threaded explicitly into
// every engine call; nothing in this package reaches for ambient state.
type Session struct {
	UserID               string
	Role                 Role
	RoleLevel            int
	OrganizationUnitID   string
	OrganizationUnitType string
}

// Validate rejects sessions with missing identity or an unknown role.
func (s Session) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return fmt.Errorf("%w: session user id is required", ErrInvalidInput)
	}
	if !s.Role.Valid() {
		return fmt.Errorf("%w: session role %q", ErrInvalidInput, s.Role)
	}
	return nil
}

type sessionContextKey struct{}

// ContextWithSession attaches the verified session to the request context.
func ContextWithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, &s)
}

// SessionFromContext extracts the session placed by the authentication
// middleware. Absence means the request is unauthenticated.
func SessionFromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	v, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || v == nil {
		return Session{}, false
	}
	return *v, true
}
