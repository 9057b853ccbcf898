// Package conflict detects and adjudicates concurrent edits of the same
// entity made on different devices. Detection compares payload snapshots
// ignoring volatile bookkeeping fields; resolution follows a per-entity-type
// rule table (last-write-wins, first-write-wins, fixed side, field merge or
// manual review).
package conflict

import (
	"time"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
)

// Kind classifies a conflict by which side is missing a payload.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Status is the lifecycle state of a registered conflict.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusIgnored  Status = "ignored"
)

// Resolution names which side (or combination) won.
type Resolution string

const (
	ResolutionLocal  Resolution = "local"
	ResolutionRemote Resolution = "remote"
	ResolutionMerge  Resolution = "merge"
	ResolutionManual Resolution = "manual"
)

// SyncConflict is a detected disagreement between a local and a remote
// version of the same entity.
type SyncConflict struct {
	ID            string            `json:"id"`
	EntityType    change.EntityType `json:"entityType"`
	EntityID      string            `json:"entityId"`
	LocalPayload  change.Payload    `json:"localPayload,omitempty"`
	RemotePayload change.Payload    `json:"remotePayload,omitempty"`
	LocalTime     time.Time         `json:"localTime"`
	RemoteTime    time.Time         `json:"remoteTime"`
	Kind          Kind              `json:"kind"`
	Status        Status            `json:"status"`
	CreatedAt     time.Time         `json:"createdAt"`

	// Filled once resolved.
	ResolvedAt      time.Time      `json:"resolvedAt,omitempty"`
	Resolution      Resolution     `json:"resolution,omitempty"`
	ResolvedPayload change.Payload `json:"resolvedPayload,omitempty"`
}

func (c *SyncConflict) clone() *SyncConflict {
	out := *c
	out.LocalPayload = c.LocalPayload.Clone()
	out.RemotePayload = c.RemotePayload.Clone()
	out.ResolvedPayload = c.ResolvedPayload.Clone()
	return &out
}

// Stats summarizes the conflict registry.
type Stats struct {
	Total      int                       `json:"total"`
	Pending    int                       `json:"pending"`
	Resolved   int                       `json:"resolved"`
	Ignored    int                       `json:"ignored"`
	ByEntity   map[change.EntityType]int `json:"byEntity"`
	ByDecision map[Resolution]int        `json:"byDecision"`
}
