package conflict

import "errors"

// Resolver errors
var (
	ErrConflictNotFound         = errors.New("conflict not found")
	ErrNoRule                   = errors.New("no resolution rule for entity type")
	ErrManualResolutionRequired = errors.New("manual resolution required")
	ErrMissingResolvedPayload   = errors.New("manual resolution requires a resolved payload")
)
