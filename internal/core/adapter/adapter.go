// Package adapter defines the transport contract every sync backend
// implements and the reference implementations: a store-only local adapter, a
// cross-tab broadcast adapter, a websocket realtime adapter and a
// non-functional cloud backend stub. Each transport embeds Core for the
// bookkeeping the contract requires (subscriptions, presence, connection
// status).
package adapter

import (
	"context"
	"time"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
)

// HeartbeatInterval is how often connected adapters refresh their presence.
const HeartbeatInterval = 30 * time.Second

// ChangeHandler receives remote changes for a subscribed entity type.
type ChangeHandler func(change.ChangeSet)

// PresenceCallback receives the full presence set whenever it changes.
type PresenceCallback func([]change.PresenceInfo)

// ConnectionStatus is a point-in-time snapshot of an adapter's link.
type ConnectionStatus struct {
	Connected     bool          `json:"connected"`
	LastHeartbeat time.Time     `json:"lastHeartbeat"`
	Latency       time.Duration `json:"latency"`
	LastError     string        `json:"lastError,omitempty"`
}

// SyncAdapter is the uniform capability surface any transport must implement.
//
// Connect must leave the adapter either fully connected with presence
// announced or fully disconnected; reconnecting while connected disconnects
// first. Push fails while disconnected. Pull returns an empty set on
// push-based transports, whose changes arrive via Subscribe instead.
type SyncAdapter interface {
	Name() string

	// Lifecycle

	Connect(ctx context.Context, householdID, userID string) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	// Change flow

	Push(ctx context.Context, cs change.ChangeSet) error
	Pull(ctx context.Context, since time.Time) ([]change.ChangeSet, error)
	Subscribe(entityType change.EntityType, handler ChangeHandler)
	Unsubscribe(entityType change.EntityType)

	// Presence

	OnPresence(callback PresenceCallback)
	UpdatePresence(ctx context.Context, status change.PresenceStatus) error

	// ResolveConflict is the adapter-local duplicate-delivery tie-break
	// (last-write-wins by timestamp), distinct from the entity-level policy
	// engine.
	ResolveConflict(local, remote change.ChangeSet) change.ChangeSet

	GetConnectionStatus() ConnectionStatus
}
