package version

import "errors"

// Tracker errors
var (
	ErrEntityNotFound  = errors.New("entity has no version history")
	ErrVersionNotFound = errors.New("version not found")
	ErrEmptyRange      = errors.New("no versions in range")
)
