package access

import "errors"

var (
	ErrNotFound     = errors.New("access: not found")
	ErrConflict     = errors.New("access: resource conflict")
	ErrInvalidInput = errors.New("access: invalid input")
	ErrForbidden    = errors.New("access: forbidden")

	// ErrSelfAction rejects deleting or demoting the acting account,
	// independent of any role or scope check.
	ErrSelfAction = errors.New("access: operation not permitted on own account")
)
