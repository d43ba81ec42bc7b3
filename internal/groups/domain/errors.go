package domain

import (
	"github.com/allisson/keycache/internal/errors"
)

// Key group errors.
var (
	// ErrGroupNotFound indicates that no group exists with the given ID.
	ErrGroupNotFound = errors.Wrap(errors.ErrNotFound, "key group not found")

	// ErrGroupAlreadyExists indicates that a group with the same name already exists.
	ErrGroupAlreadyExists = errors.Wrap(errors.ErrConflict, "key group already exists")
)
