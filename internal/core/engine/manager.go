// Package engine contains the sync manager: the orchestrator that queues
// outgoing changes, drains them to the configured transports, records every
// applied mutation in the version tracker and routes colliding remote updates
// through the conflict resolver.
package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/adapter"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/conflict"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/events/bus"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/identity"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/version"
)

// drainRescheduleDelay is how soon another drain runs when a batch leaves
// items behind, instead of waiting the full periodic interval.
const drainRescheduleDelay = 100 * time.Millisecond

// Manager orchestrates synchronization for one household scope. Construct
// one per scope at the composition root and share it by reference; there is
// no process-wide instance.
type Manager struct {
	config   Config
	identity identity.Provider
	tracker  *version.Tracker
	resolver *conflict.Resolver
	events   *bus.Bus
	logger   log.Log

	adapters map[string]adapter.SyncAdapter
	primary  adapter.SyncAdapter
	queue    *operationQueue

	mu       sync.Mutex
	online   bool
	draining bool
	started  bool
	stop     chan struct{}
	failed   int

	metricsMu sync.Mutex
	metrics   Metrics
	lastSync  time.Time
}

// NewManager validates the configuration and wires the manager to its
// collaborators. Every adapter named in the config must be present in the
// adapter set.
func NewManager(
	config Config,
	adapters map[string]adapter.SyncAdapter,
	id identity.Provider,
	tracker *version.Tracker,
	resolver *conflict.Resolver,
	events *bus.Bus,
	logger log.Log,
) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "sync config")
	}
	for _, name := range config.Adapters {
		if name == "realtime" && !config.EnableRealtime {
			continue
		}
		if _, ok := adapters[name]; !ok {
			return nil, errors.Errorf("configured adapter %q was not provided", name)
		}
	}
	if config.EnableVersioning && tracker == nil {
		return nil, errors.New("versioning enabled but no tracker provided")
	}

	m := &Manager{
		config:   config,
		identity: id,
		tracker:  tracker,
		resolver: resolver,
		events:   events,
		logger:   logger.With(log.String("component", "sync_manager")),
		adapters: make(map[string]adapter.SyncAdapter),
		queue:    newOperationQueue(),
		online:   true,
	}
	for _, name := range config.Adapters {
		if name == "realtime" && !config.EnableRealtime {
			continue
		}
		m.adapters[name] = adapters[name]
	}
	m.primary = m.adapters[config.Primary]
	if m.primary == nil {
		return nil, errors.Errorf("primary adapter %q is disabled", config.Primary)
	}
	return m, nil
}

// Start connects every adapter concurrently and begins the periodic drain.
// A secondary adapter failing to connect is logged and tolerated; the
// primary failing is fatal.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.stop = make(chan struct{})
	m.mu.Unlock()

	householdID := m.identity.HouseholdID()
	userID := m.identity.UserID()

	g, gctx := errgroup.WithContext(ctx)
	for name, ad := range m.adapters {
		name, ad := name, ad
		g.Go(func() error {
			if err := ad.Connect(gctx, householdID, userID); err != nil {
				if name == m.config.Primary {
					return errors.Wrapf(err, "connect primary adapter %s", name)
				}
				m.logger.Warn("Secondary adapter connect failed",
					log.String("adapter", name), log.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.shutdown(ctx)
		m.mu.Lock()
		m.started = false
		m.mu.Unlock()
		return err
	}

	for _, ad := range m.adapters {
		for _, entityType := range m.config.EntityTypes {
			ad.Subscribe(entityType, m.handleRemoteChange)
		}
	}

	go m.periodicLoop(m.stop)

	m.publish(EventConnectionChanged, ConnectionEventData{Online: true})
	m.logger.Info("Sync manager started",
		log.String("household_id", householdID),
		log.String("primary", m.config.Primary),
		log.Int("adapters", len(m.adapters)))
	return nil
}

// Stop halts the periodic drain and disconnects every adapter. Queued
// changes are kept for the next Start.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	close(m.stop)
	m.mu.Unlock()

	m.shutdown(ctx)
	m.publish(EventConnectionChanged, ConnectionEventData{Online: false})
	m.logger.Info("Sync manager stopped", log.Int("pending", m.queue.len()))
	return nil
}

func (m *Manager) shutdown(ctx context.Context) {
	for name, ad := range m.adapters {
		if err := ad.Disconnect(ctx); err != nil {
			m.logger.Warn("Adapter disconnect failed", log.String("adapter", name), log.Error(err))
		}
	}
}

// Sync records and enqueues one local mutation. Deletes, and every change
// when the primary transport is realtime, attempt delivery immediately:
// an undone delete racing a timer is worse than a duplicate delivery.
func (m *Manager) Sync(ctx context.Context, entityType change.EntityType, entityID string, payload change.Payload, operation change.Operation) error {
	userID := m.identity.UserID()

	var recorded *version.DataVersion
	if m.config.EnableVersioning {
		var previous change.Payload
		if current := m.tracker.GetCurrentVersion(entityType, entityID); current != nil {
			previous = current.Payload
		}
		recorded = m.tracker.CreateVersion(entityType, entityID, payload, operation, userID, previous)
	}

	cs := change.ChangeSet{
		EntityType:  entityType,
		EntityID:    entityID,
		Operation:   operation,
		Payload:     payload.Clone(),
		UserID:      userID,
		HouseholdID: m.identity.HouseholdID(),
		Timestamp:   m.identity.Now(),
	}
	m.queue.enqueue(cs)

	queued := ChangeEventData{Change: cs}
	if recorded != nil {
		queued.Version = recorded.Version
		queued.Checksum = recorded.Checksum
	}
	m.publish(EventChangeQueued, queued)

	if operation == change.OperationDelete || m.config.Primary == "realtime" {
		m.TriggerSync(ctx)
	}
	return nil
}

// TriggerSync drains up to one batch. A no-op while offline, already
// draining, or with an empty queue.
func (m *Manager) TriggerSync(ctx context.Context) {
	m.mu.Lock()
	if !m.online || m.draining || !m.started {
		m.mu.Unlock()
		return
	}
	if m.queue.len() == 0 {
		m.mu.Unlock()
		return
	}
	m.draining = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.draining = false
		m.mu.Unlock()
	}()

	m.drainBatch(ctx)
}

func (m *Manager) drainBatch(ctx context.Context) {
	batch := m.queue.batch(m.config.BatchSize)
	sent, failed := 0, 0

	for _, op := range batch {
		latency, size, err := m.pushToPrimary(ctx, op.change)
		if err != nil {
			op.attempts++
			terminal := op.attempts > m.config.RetryAttempts
			if terminal {
				m.queue.remove(op.id)
				m.mu.Lock()
				m.failed++
				m.mu.Unlock()
			}
			failed++
			m.metricsMu.Lock()
			m.metrics.record(false, 0, 0)
			m.metricsMu.Unlock()
			m.publish(EventChangeFailed, ChangeEventData{
				Change:   op.change,
				Attempts: op.attempts,
				Terminal: terminal,
				Error:    err.Error(),
			})
			m.logger.Warn("Change delivery failed",
				log.String("entity_type", string(op.change.EntityType)),
				log.String("entity_id", op.change.EntityID),
				log.Int("attempts", op.attempts),
				log.Bool("terminal", terminal),
				log.Error(err))
			continue
		}

		m.queue.remove(op.id)
		sent++
		m.metricsMu.Lock()
		m.metrics.record(true, latency, size)
		m.lastSync = time.Now()
		m.metricsMu.Unlock()
		m.publish(EventChangeSent, ChangeEventData{Change: op.change, Attempts: op.attempts + 1})

		m.mirrorToSecondaries(ctx, op.change)
	}

	pending := m.queue.len()
	m.publish(EventCycleCompleted, CycleEventData{Sent: sent, Failed: failed, Pending: pending})

	// Leftover work reschedules a near-term drain instead of waiting out the
	// full periodic interval.
	if pending > 0 && sent > 0 {
		time.AfterFunc(drainRescheduleDelay, func() {
			m.TriggerSync(context.Background())
		})
	}
}

func (m *Manager) pushToPrimary(ctx context.Context, cs change.ChangeSet) (time.Duration, int, error) {
	pushCtx, cancel := context.WithTimeout(ctx, m.config.PushTimeout)
	defer cancel()

	start := time.Now()
	if err := m.primary.Push(pushCtx, cs); err != nil {
		return 0, 0, err
	}
	size := 0
	if data, err := json.Marshal(cs); err == nil {
		size = len(data)
	}
	return time.Since(start), size, nil
}

// mirrorToSecondaries fans the change out to every non-primary adapter.
// Individual failures are logged and ignored.
func (m *Manager) mirrorToSecondaries(ctx context.Context, cs change.ChangeSet) {
	for name, ad := range m.adapters {
		if name == m.config.Primary {
			continue
		}
		pushCtx, cancel := context.WithTimeout(ctx, m.config.PushTimeout)
		if err := ad.Push(pushCtx, cs); err != nil {
			m.logger.Debug("Secondary mirror failed",
				log.String("adapter", name),
				log.String("entity_id", cs.EntityID),
				log.Error(err))
		}
		cancel()
	}
}

// periodicLoop attempts a drain every sync interval while online. Ticks are
// independent of in-flight work: one firing during a drain is a no-op.
func (m *Manager) periodicLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(m.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.TriggerSync(context.Background())
		}
	}
}

// SetOnline flips connectivity. Going online immediately attempts a drain;
// going offline keeps the queue accumulating for later delivery.
func (m *Manager) SetOnline(ctx context.Context, online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	m.mu.Unlock()
	if was == online {
		return
	}

	m.publish(EventConnectionChanged, ConnectionEventData{Online: online})
	m.logger.Info("Connectivity changed", log.Bool("online", online))
	if online {
		m.TriggerSync(ctx)
	}
}

// handleRemoteChange is subscribed on every adapter. A remote update that
// collides with a known local version goes through the conflict resolver;
// otherwise it is surfaced directly as the effective update.
func (m *Manager) handleRemoteChange(cs change.ChangeSet) {
	if !m.config.EnableVersioning {
		m.applyRemote(cs, false)
		return
	}

	current := m.tracker.GetCurrentVersion(cs.EntityType, cs.EntityID)
	if current == nil {
		// No local version, no conflict possible.
		m.applyRemote(cs, false)
		return
	}
	if version.Checksum(cs.Payload) == current.Checksum {
		// Exact duplicate of the version already held, a re-delivery.
		return
	}

	detected := m.resolver.DetectConflict(cs.EntityType, cs.EntityID,
		current.Payload, cs.Payload, current.CreatedAt, cs.Timestamp)
	if detected == nil {
		m.applyRemote(cs, false)
		return
	}

	m.publish(EventConflictDetected, ConflictEventData{Conflict: detected})

	if m.config.ConflictMode != ConflictModeAuto {
		// Manual mode: the host resolves through ResolveConflict later.
		return
	}
	if rule, ok := m.resolver.GetRule(cs.EntityType); ok && !rule.AutoResolve {
		// The entity type demands review even in auto mode.
		return
	}

	resolved, err := m.resolver.ResolveConflict(detected.ID, "", nil)
	if err != nil {
		m.logger.Warn("Auto-resolution failed, conflict left pending",
			log.String("conflict_id", detected.ID),
			log.String("entity_id", cs.EntityID),
			log.Error(err))
		return
	}
	m.publish(EventConflictResolved, ConflictEventData{Conflict: detected, Resolved: resolved})

	effective := cs
	effective.Payload = resolved
	m.applyRemote(effective, true)
}

func (m *Manager) applyRemote(cs change.ChangeSet, resolved bool) {
	if m.config.EnableVersioning {
		var previous change.Payload
		if current := m.tracker.GetCurrentVersion(cs.EntityType, cs.EntityID); current != nil {
			previous = current.Payload
		}
		m.tracker.CreateVersion(cs.EntityType, cs.EntityID, cs.Payload, cs.Operation, cs.UserID, previous)
	}
	m.publish(EventRemoteApplied, RemoteEventData{Change: cs, Resolved: resolved})
}

// ResolveConflict settles a pending conflict on the host's behalf and
// surfaces the outcome.
func (m *Manager) ResolveConflict(conflictID string, resolution conflict.Resolution, manualPayload change.Payload) (change.Payload, error) {
	resolved, err := m.resolver.ResolveConflict(conflictID, resolution, manualPayload)
	if err != nil {
		return nil, err
	}
	detected, _ := m.resolver.GetConflict(conflictID)
	m.publish(EventConflictResolved, ConflictEventData{Conflict: detected, Resolved: resolved})
	return resolved, nil
}

// Revert rolls an entity back to a prior version: a new version is appended
// and the reverted payload is enqueued for delivery like any local change.
func (m *Manager) Revert(ctx context.Context, entityType change.EntityType, entityID string, targetVersion int64) (*version.DataVersion, error) {
	if !m.config.EnableVersioning {
		return nil, errors.New("version tracking is disabled")
	}
	reverted, err := m.tracker.RevertToVersion(entityType, entityID, targetVersion, m.identity.UserID())
	if err != nil {
		return nil, err
	}

	m.publish(EventVersionReverted, RevertEventData{
		EntityType: entityType,
		EntityID:   entityID,
		Target:     targetVersion,
		NewVersion: reverted.Version,
	})

	cs := change.ChangeSet{
		EntityType:  entityType,
		EntityID:    entityID,
		Operation:   change.OperationUpdate,
		Payload:     reverted.Payload.Clone(),
		UserID:      m.identity.UserID(),
		HouseholdID: m.identity.HouseholdID(),
		Timestamp:   m.identity.Now(),
	}
	m.queue.enqueue(cs)
	m.publish(EventChangeQueued, ChangeEventData{Change: cs})
	m.TriggerSync(ctx)
	return reverted, nil
}

// Status returns a snapshot of the manager's externally visible state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	online := m.online
	syncing := m.draining
	failed := m.failed
	m.mu.Unlock()

	m.metricsMu.Lock()
	lastSync := m.lastSync
	m.metricsMu.Unlock()

	return Status{
		Connected:      m.primary.IsConnected(),
		Online:         online,
		Syncing:        syncing,
		LastSyncAt:     lastSync,
		PendingChanges: m.queue.len(),
		FailedChanges:  failed,
		ConflictCount:  len(m.resolver.GetPendingConflicts()),
	}
}

// GetMetrics returns a copy of the aggregate counters.
func (m *Manager) GetMetrics() Metrics {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()
	return m.metrics
}

// ResetMetrics zeroes the aggregate counters.
func (m *Manager) ResetMetrics() {
	m.metricsMu.Lock()
	m.metrics = Metrics{}
	m.metricsMu.Unlock()
}

func (m *Manager) publish(kind string, data any) {
	if m.events == nil {
		return
	}
	_ = m.events.Publish(bus.NewEvent(kind, "sync_manager", data))
}
