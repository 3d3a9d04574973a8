package org

import (
	"context"
	"time"
)

// Store describes persistence for organization units. Implementations map
// duplicate codes to access.ErrConflict and absent rows to
// access.ErrNotFound; they do not filter soft-deleted rows (visibility is the
// service's job).
type Store interface {
	Create(ctx context.Context, unit *Unit) error
	Find(ctx context.Context, id string) (*Unit, error)
	List(ctx context.Context) ([]*Unit, error)
	FindChildren(ctx context.Context, parentID string) ([]*Unit, error)
	HasDependents(ctx context.Context, id string) (bool, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
}
