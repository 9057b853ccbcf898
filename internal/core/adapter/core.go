package adapter

import (
	"sort"
	"sync"
	"time"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
)

// Core is the composable bookkeeping helper every adapter embeds: subscriber
// lists, the presence map, connection scope and status. It implements the
// contract methods that do not touch a transport.
type Core struct {
	name   string
	logger log.Log

	mu          sync.RWMutex
	connected   bool
	householdID string
	userID      string
	handlers    map[change.EntityType][]ChangeHandler
	presence    map[string]change.PresenceInfo
	presenceCbs []PresenceCallback

	lastHeartbeat time.Time
	latency       time.Duration
	lastErr       error

	// Stats
	pushed    uint64
	delivered uint64
}

// NewCore creates the embedded helper for a named adapter.
func NewCore(name string, logger log.Log) Core {
	return Core{
		name:     name,
		logger:   logger.With(log.String("adapter", name)),
		handlers: make(map[change.EntityType][]ChangeHandler),
		presence: make(map[string]change.PresenceInfo),
	}
}

func (c *Core) Name() string { return c.name }

// Logger returns the adapter-scoped logger.
func (c *Core) Logger() log.Log { return c.logger }

func (c *Core) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Scope returns the household and user the adapter is connected as.
func (c *Core) Scope() (householdID, userID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.householdID, c.userID
}

// SetConnected records a connection state transition.
func (c *Core) SetConnected(connected bool, householdID, userID string) {
	c.mu.Lock()
	c.connected = connected
	c.householdID = householdID
	c.userID = userID
	if connected {
		c.lastErr = nil
		c.lastHeartbeat = time.Now()
	}
	c.mu.Unlock()
}

// Subscribe appends an independent handler for the entity type.
func (c *Core) Subscribe(entityType change.EntityType, handler ChangeHandler) {
	c.mu.Lock()
	c.handlers[entityType] = append(c.handlers[entityType], handler)
	c.mu.Unlock()
}

// Unsubscribe removes all handlers for the entity type.
func (c *Core) Unsubscribe(entityType change.EntityType) {
	c.mu.Lock()
	delete(c.handlers, entityType)
	c.mu.Unlock()
}

// Dispatch fans a remote change out to the entity type's handlers. Handler
// panics are contained so one faulty subscriber cannot starve the rest.
func (c *Core) Dispatch(cs change.ChangeSet) {
	c.mu.RLock()
	handlers := make([]ChangeHandler, len(c.handlers[cs.EntityType]))
	copy(handlers, c.handlers[cs.EntityType])
	c.mu.RUnlock()

	for _, handler := range handlers {
		c.safeDispatch(handler, cs)
	}
	if len(handlers) > 0 {
		c.mu.Lock()
		c.delivered += uint64(len(handlers))
		c.mu.Unlock()
	}
}

func (c *Core) safeDispatch(handler ChangeHandler, cs change.ChangeSet) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Change handler panicked",
				log.String("entity_type", string(cs.EntityType)),
				log.String("entity_id", cs.EntityID),
				log.Any("panic", r))
		}
	}()
	handler(cs)
}

// OnPresence registers a callback invoked with the full presence set on every
// change.
func (c *Core) OnPresence(callback PresenceCallback) {
	c.mu.Lock()
	c.presenceCbs = append(c.presenceCbs, callback)
	c.mu.Unlock()
}

// SetPresence upserts one member's presence and notifies callbacks.
func (c *Core) SetPresence(info change.PresenceInfo) {
	c.mu.Lock()
	c.presence[info.UserID] = info
	c.mu.Unlock()
	c.notifyPresence()
}

// RemovePresence drops a member from the presence map entirely, which is how
// "known to be gone" is told apart from "not yet heard from".
func (c *Core) RemovePresence(userID string) {
	c.mu.Lock()
	_, existed := c.presence[userID]
	delete(c.presence, userID)
	c.mu.Unlock()
	if existed {
		c.notifyPresence()
	}
}

// PresenceSnapshot returns the current presence set sorted by user id.
func (c *Core) PresenceSnapshot() []change.PresenceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.presenceLocked()
}

func (c *Core) presenceLocked() []change.PresenceInfo {
	out := make([]change.PresenceInfo, 0, len(c.presence))
	for _, info := range c.presence {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (c *Core) notifyPresence() {
	c.mu.RLock()
	callbacks := make([]PresenceCallback, len(c.presenceCbs))
	copy(callbacks, c.presenceCbs)
	snapshot := c.presenceLocked()
	c.mu.RUnlock()

	for _, cb := range callbacks {
		cb(snapshot)
	}
}

// MarkHeartbeat refreshes the liveness timestamp and latency estimate.
func (c *Core) MarkHeartbeat(latency time.Duration) {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	if latency > 0 {
		c.latency = latency
	}
	c.mu.Unlock()
}

// SetLastError records the most recent transport failure.
func (c *Core) SetLastError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// CountPush bumps the pushed-changes counter.
func (c *Core) CountPush() {
	c.mu.Lock()
	c.pushed++
	c.mu.Unlock()
}

func (c *Core) GetConnectionStatus() ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := ConnectionStatus{
		Connected:     c.connected,
		LastHeartbeat: c.lastHeartbeat,
		Latency:       c.latency,
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	return status
}

// ResolveConflict is the low-level duplicate-delivery tie-break: keep the
// newer change, remote on equal timestamps.
func (c *Core) ResolveConflict(local, remote change.ChangeSet) change.ChangeSet {
	if remote.Timestamp.Before(local.Timestamp) {
		return local
	}
	return remote
}
