// Package change defines the domain types exchanged between the version
// tracker, the conflict resolver, the sync adapters and the sync manager:
// change sets, sync events and presence records for a single household scope.
package change

import "time"

// Operation is the kind of mutation applied to an entity.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// EntityType identifies a domain collection (expenses, tasks, documents,
// medications, calendar events). The engine treats it as an opaque label.
type EntityType string

const (
	EntityExpense    EntityType = "expense"
	EntityTask       EntityType = "task"
	EntityDocument   EntityType = "document"
	EntityMedication EntityType = "medication"
	EntityCalendar   EntityType = "calendar_event"
)

// ChangeSet is the unit of work moved through the sync pipeline.
type ChangeSet struct {
	EntityType  EntityType `json:"entityType"`
	EntityID    string     `json:"entityId"`
	Operation   Operation  `json:"operation"`
	Payload     Payload    `json:"payload,omitempty"`
	UserID      string     `json:"userId"`
	HouseholdID string     `json:"householdId"`
	Timestamp   time.Time  `json:"timestamp"`
}

// SyncEvent is the richer event form carrying the version number and
// checksum used to detect staleness on receipt.
type SyncEvent struct {
	ChangeSet
	Version  int64  `json:"version"`
	Checksum string `json:"checksum"`
}

// PresenceStatus is the advertised availability of a household member.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// PresenceInfo describes one household member as last heard from. Ephemeral,
// rebuilt from heartbeats and presence broadcasts, never persisted.
type PresenceInfo struct {
	UserID   string         `json:"userId"`
	UserName string         `json:"userName"`
	LastSeen time.Time      `json:"lastSeen"`
	Online   bool           `json:"online"`
	Status   PresenceStatus `json:"status"`
}
