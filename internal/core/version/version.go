// Package version records an immutable, append-only version history per
// entity. Every mutation the sync manager applies is captured as a
// DataVersion carrying a deep copy of the payload, a checksum and, for
// updates, a field-level change map.
package version

import (
	"time"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
)

// Metadata keys attached by revert and squash operations.
const (
	MetaRevertedFrom  = "revertedFromVersion"
	MetaSquashed      = "squashed"
	MetaSquashedRange = "squashedVersions"
	MetaSquashedCount = "squashedCount"
)

// FieldChange is one changed field on an update, old value vs. new value.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// DataVersion is one immutable snapshot in an entity's history.
type DataVersion struct {
	ID         string                 `json:"id"`
	EntityType change.EntityType      `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Version    int64                  `json:"version"`
	Payload    change.Payload         `json:"payload"`
	Checksum   string                 `json:"checksum"`
	CreatedAt  time.Time              `json:"createdAt"`
	CreatedBy  string                 `json:"createdBy"`
	Operation  change.Operation       `json:"operation"`
	Changes    map[string]FieldChange `json:"changes,omitempty"`
	Metadata   map[string]any         `json:"metadata,omitempty"`
}

// clone returns a defensive copy so callers can never reach into history.
func (v *DataVersion) clone() *DataVersion {
	out := *v
	out.Payload = v.Payload.Clone()
	if v.Changes != nil {
		out.Changes = make(map[string]FieldChange, len(v.Changes))
		for k, c := range v.Changes {
			out.Changes[k] = c
		}
	}
	if v.Metadata != nil {
		out.Metadata = make(map[string]any, len(v.Metadata))
		for k, m := range v.Metadata {
			out.Metadata[k] = m
		}
	}
	return &out
}

// DiffKind classifies one field difference between two payloads.
type DiffKind string

const (
	DiffAdded    DiffKind = "added"
	DiffModified DiffKind = "modified"
	DiffRemoved  DiffKind = "removed"
)

// VersionDiff is a field-level comparison result between two payloads.
// Derived on demand, never persisted.
type VersionDiff struct {
	Field    string   `json:"field"`
	OldValue any      `json:"oldValue,omitempty"`
	NewValue any      `json:"newValue,omitempty"`
	Kind     DiffKind `json:"kind"`
}

// RetentionPolicy bounds how much history cleanup keeps per entity. A version
// survives if it is among the MaxPerEntity most recent ones or newer than
// MaxAge (union of both rules).
type RetentionPolicy struct {
	MaxPerEntity int           `json:"maxPerEntity" yaml:"maxPerEntity"`
	MaxAge       time.Duration `json:"maxAge" yaml:"maxAge"`
}
