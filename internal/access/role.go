package access

import (
	"fmt"
	"strings"
)

// Role is one of the four static portal roles. A lower level is more
// privileged.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleLeader  Role = "LEADER"
	RoleUser    Role = "USER"
)

const unknownRoleLevel = 1 << 10

var roleLevels = map[Role]int{
	RoleAdmin:   0,
	RoleManager: 1,
	RoleLeader:  2,
	RoleUser:    3,
}

// Level returns the numeric privilege level. Unknown roles sort below every
// real role so they can never outrank anyone.
func (r Role) Level() int {
	if lvl, ok := roleLevels[r]; ok {
		return lvl
	}
	return unknownRoleLevel
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// ParseRole normalizes and validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
	return r, nil
}
