package engine

import (
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/conflict"
)

// Event kinds the manager publishes. Hosts subscribe through the event bus
// instead of wiring callbacks into the manager.
const (
	EventChangeQueued      = "sync.change_queued"
	EventChangeSent        = "sync.change_sent"
	EventChangeFailed      = "sync.change_failed"
	EventRemoteApplied     = "sync.remote_applied"
	EventConflictDetected  = "sync.conflict_detected"
	EventConflictResolved  = "sync.conflict_resolved"
	EventConnectionChanged = "sync.connection_changed"
	EventVersionReverted   = "sync.version_reverted"
	EventCycleCompleted    = "sync.cycle_completed"
)

// ChangeEventData accompanies queued/sent/failed events. Version and
// Checksum are filled when versioning is enabled, forming the richer sync
// event hosts can use to detect stale deliveries.
type ChangeEventData struct {
	Change   change.ChangeSet `json:"change"`
	Version  int64            `json:"version,omitempty"`
	Checksum string           `json:"checksum,omitempty"`
	Attempts int              `json:"attempts"`
	Terminal bool             `json:"terminal,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// RemoteEventData accompanies remote_applied events.
type RemoteEventData struct {
	Change   change.ChangeSet `json:"change"`
	Resolved bool             `json:"resolved"`
}

// ConflictEventData accompanies conflict events.
type ConflictEventData struct {
	Conflict *conflict.SyncConflict `json:"conflict"`
	Resolved change.Payload         `json:"resolved,omitempty"`
}

// ConnectionEventData accompanies connection_changed events.
type ConnectionEventData struct {
	Online bool `json:"online"`
}

// RevertEventData accompanies version_reverted events.
type RevertEventData struct {
	EntityType change.EntityType `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Target     int64             `json:"target"`
	NewVersion int64             `json:"newVersion"`
}

// CycleEventData accompanies cycle_completed events.
type CycleEventData struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}
