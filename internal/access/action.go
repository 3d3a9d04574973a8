package access

import (
	"fmt"
	"strings"
)

// Action enumerates the operations the portal gates.
type Action string

const (
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionLock    Action = "lock"
)

// Resource enumerates the record families an action applies to.
type Resource string

const (
	ResourceUsers             Resource = "users"
	ResourceOrganizationUnits Resource = "organization_units"
	ResourceShifts            Resource = "shifts"
	ResourceShiftAssignments  Resource = "shift_assignments"
	ResourceAttendance        Resource = "attendance"
	ResourceKPI               Resource = "kpi"
	ResourceApprovals         Resource = "approvals"
	ResourceAuditLogs         Resource = "audit_logs"
)

// permissionMatrix is the single authoritative table of valid
// (action, resource) pairs. Pairs outside this table cannot be granted,
// stored, or checked; they deny at construction time.
var permissionMatrix = map[Resource][]Action{
	ResourceUsers:             {ActionView, ActionCreate, ActionUpdate, ActionDelete},
	ResourceOrganizationUnits: {ActionView, ActionCreate, ActionUpdate, ActionDelete},
	ResourceShifts:            {ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionLock},
	ResourceShiftAssignments:  {ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionApprove},
	ResourceAttendance:        {ActionView, ActionCreate, ActionUpdate, ActionApprove, ActionLock},
	ResourceKPI:               {ActionView, ActionCreate, ActionUpdate, ActionApprove, ActionLock},
	ResourceApprovals:         {ActionView, ActionCreate, ActionUpdate, ActionApprove},
	ResourceAuditLogs:         {ActionView},
}

// Permission is a validated (action, resource) pair. Construct it through
// NewPermission so an invalid pair is an error at the boundary instead of a
// silent always-deny deep in a query.
type Permission struct {
	Action   Action
	Resource Resource
}

// NewPermission validates the pair against the permission matrix.
func NewPermission(action Action, resource Resource) (Permission, error) {
	actions, ok := permissionMatrix[resource]
	if !ok {
		return Permission{}, fmt.Errorf("%w: unknown resource %q", ErrInvalidInput, resource)
	}
	for _, a := range actions {
		if a == action {
			return Permission{Action: action, Resource: resource}, nil
		}
	}
	return Permission{}, fmt.Errorf("%w: action %q not defined for resource %q", ErrInvalidInput, action, resource)
}

// ValidPair reports whether (action, resource) appears in the matrix.
func ValidPair(action Action, resource Resource) bool {
	_, err := NewPermission(action, resource)
	return err == nil
}

// Key renders the pair in the canonical "action:resource" form used in audit
// entries and API payloads.
func (p Permission) Key() string {
	return string(p.Action) + ":" + string(p.Resource)
}

// ParseAction normalizes and validates an action name.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionApprove, ActionLock:
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, s)
}

// ParseResource normalizes and validates a resource name.
func ParseResource(s string) (Resource, error) {
	r := Resource(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := permissionMatrix[r]; !ok {
		return "", fmt.Errorf("%w: unknown resource %q", ErrInvalidInput, s)
	}
	return r, nil
}
