package access

// ScopeKind discriminates the three shapes a scope filter can take.
type ScopeKind int

const (
	// ScopeUnrestricted places no row restriction (Admin).
	ScopeUnrestricted ScopeKind = iota
	// ScopeOrgUnits restricts rows to a set of organization unit ids
	// (Manager, Leader).
	ScopeOrgUnits
	// ScopeSelf restricts rows to those owned by the session user (User).
	ScopeSelf
)

// ScopeFilter describes which rows a session may see for organization-scoped
// resources. The engine computes it; route handlers attach it to their own
// storage queries. The filter never issues queries itself.
type ScopeFilter struct {
	Kind            ScopeKind
	UnitIDs         []string
	UserID          string
	IncludeChildren bool
}

// Unrestricted returns the empty filter.
func Unrestricted() ScopeFilter {
	return ScopeFilter{Kind: ScopeUnrestricted}
}

// OrgUnitScope returns a filter limited to the given unit ids.
func OrgUnitScope(unitIDs []string) ScopeFilter {
	return ScopeFilter{Kind: ScopeOrgUnits, UnitIDs: unitIDs, IncludeChildren: true}
}

// SelfScope returns a filter limited to rows owned by userID.
func SelfScope(userID string) ScopeFilter {
	return ScopeFilter{Kind: ScopeSelf, UserID: userID}
}

// AllowsUnit reports whether rows belonging to unitID pass the filter.
func (f ScopeFilter) AllowsUnit(unitID string) bool {
	switch f.Kind {
	case ScopeUnrestricted:
		return true
	case ScopeOrgUnits:
		for _, id := range f.UnitIDs {
			if id == unitID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// AllowsUser reports whether a row owned by userID in unitID passes the
// filter.
func (f ScopeFilter) AllowsUser(userID, unitID string) bool {
	if f.Kind == ScopeSelf {
		return f.UserID == userID
	}
	return f.AllowsUnit(unitID)
}
