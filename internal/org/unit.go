package org

import (
	"fmt"
	"strings"
	"time"

	"hrops.org/internal/access"
)

// UnitType is one of the four organizational tiers, ordered from largest to
// smallest scope. A child's rank must be strictly greater than its parent's.
type UnitType string

const (
	TypeTTVH       UnitType = "TTVH"
	TypeBCVH       UnitType = "BCVH"
	TypeBCP        UnitType = "BCP"
	TypeDepartment UnitType = "DEPARTMENT"
)

var typeRanks = map[UnitType]int{
	TypeTTVH:       0,
	TypeBCVH:       1,
	TypeBCP:        2,
	TypeDepartment: 3,
}

// Rank returns the tier ordinal, or -1 for an unknown type.
func (t UnitType) Rank() int {
	if r, ok := typeRanks[t]; ok {
		return r
	}
	return -1
}

// Valid reports whether t is a defined tier.
func (t UnitType) Valid() bool {
	_, ok := typeRanks[t]
	return ok
}

// ParseUnitType normalizes and validates a tier name.
func ParseUnitType(s string) (UnitType, error) {
	t := UnitType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown unit type %q", access.ErrInvalidInput, s)
	}
	return t, nil
}

// Lifecycle is the soft-delete state shared by units and users. Visibility
// decisions go through this type; callers never inspect the timestamp
// directly.
type Lifecycle struct {
	DeletedAt *time.Time
}

// Deleted reports whether the record is tombstoned.
func (l Lifecycle) Deleted() bool { return l.DeletedAt != nil }

// Visible reports whether the record participates in reads.
func (l Lifecycle) Visible() bool { return l.DeletedAt == nil }

// Unit is a node of the organizational forest.
type Unit struct {
	ID       string
	Code     string
	Name     string
	Type     UnitType
	ParentID *string
	Address  string
	Phone    string
	Lifecycle
	CreatedAt time.Time
	UpdatedAt time.Time
}
