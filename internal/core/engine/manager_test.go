package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/adapter"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/conflict"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/events/bus"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/identity"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/version"
)

// fakeAdapter is an in-memory transport that records pushes and can be
// flipped into a failing mode.
type fakeAdapter struct {
	adapter.Core

	mu      sync.Mutex
	pushed  []change.ChangeSet
	failing bool
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{Core: adapter.NewCore(name, log.Nop())}
}

func (f *fakeAdapter) Connect(_ context.Context, householdID, userID string) error {
	f.SetConnected(true, householdID, userID)
	return nil
}

func (f *fakeAdapter) Disconnect(context.Context) error {
	f.SetConnected(false, "", "")
	return nil
}

func (f *fakeAdapter) Push(_ context.Context, cs change.ChangeSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("transport unavailable")
	}
	f.pushed = append(f.pushed, cs)
	f.CountPush()
	return nil
}

func (f *fakeAdapter) Pull(context.Context, time.Time) ([]change.ChangeSet, error) {
	return nil, nil
}

func (f *fakeAdapter) UpdatePresence(context.Context, change.PresenceStatus) error {
	return nil
}

func (f *fakeAdapter) setFailing(failing bool) {
	f.mu.Lock()
	f.failing = failing
	f.mu.Unlock()
}

func (f *fakeAdapter) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushed)
}

func (f *fakeAdapter) lastPush() change.ChangeSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushed[len(f.pushed)-1]
}

type managerFixture struct {
	manager  *Manager
	primary  *fakeAdapter
	tracker  *version.Tracker
	resolver *conflict.Resolver
	events   *bus.Bus
}

func newManagerFixture(t *testing.T, mutate func(*Config)) *managerFixture {
	t.Helper()

	config := DefaultConfig()
	config.Adapters = []string{"main"}
	config.Primary = "main"
	config.SyncInterval = time.Hour // ticks driven manually in tests
	mutate(&config)

	primary := newFakeAdapter("main")
	tracker := version.NewTracker(log.Nop())
	resolver := conflict.NewResolver(log.Nop())
	events := bus.New(log.Nop())

	id := identity.Static{User: "user:1", Name: "Ana", Household: "house:1"}
	manager, err := NewManager(config, map[string]adapter.SyncAdapter{"main": primary},
		id, tracker, resolver, events, log.Nop())
	require.NoError(t, err)
	require.NoError(t, manager.Start(context.Background()))
	t.Cleanup(func() { _ = manager.Stop(context.Background()) })

	return &managerFixture{
		manager:  manager,
		primary:  primary,
		tracker:  tracker,
		resolver: resolver,
		events:   events,
	}
}

// collect subscribes to one event kind and returns a thread-safe reader.
func collect(fx *managerFixture, kind string) func() []bus.Event {
	var mu sync.Mutex
	var seen []bus.Event
	fx.events.Subscribe(kind, func(e bus.Event) error {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
		return nil
	})
	return func() []bus.Event {
		mu.Lock()
		defer mu.Unlock()
		out := make([]bus.Event, len(seen))
		copy(out, seen)
		return out
	}
}

func TestManagerDrainsQueueInBatches(t *testing.T) {
	fx := newManagerFixture(t, func(c *Config) {
		c.BatchSize = 50
	})
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		payload := change.Payload{"amount": float64(i)}
		err := fx.manager.Sync(ctx, change.EntityExpense, fmt.Sprintf("exp:%d", i), payload, change.OperationCreate)
		require.NoError(t, err)
	}
	require.Equal(t, 120, fx.manager.Status().PendingChanges)

	fx.manager.TriggerSync(ctx)
	require.Eventually(t, func() bool {
		return fx.manager.Status().PendingChanges == 0
	}, 2*time.Second, 10*time.Millisecond)

	metrics := fx.manager.GetMetrics()
	assert.Equal(t, uint64(120), metrics.SuccessfulSyncs)
	assert.Equal(t, uint64(0), metrics.FailedSyncs)
	assert.Equal(t, 120, fx.primary.pushCount())
	assert.NotZero(t, metrics.BytesTransferred)
}

func TestManagerDeleteBypassesTimer(t *testing.T) {
	fx := newManagerFixture(t, func(*Config) {})
	ctx := context.Background()

	err := fx.manager.Sync(ctx, change.EntityTask, "task:doomed", nil, change.OperationDelete)
	require.NoError(t, err)

	// No TriggerSync call: the delete must have been pushed on its own.
	require.Equal(t, 1, fx.primary.pushCount())
	assert.Equal(t, change.OperationDelete, fx.primary.lastPush().Operation)
	assert.Equal(t, 0, fx.manager.Status().PendingChanges)
}

func TestManagerUpdateWaitsForTrigger(t *testing.T) {
	fx := newManagerFixture(t, func(*Config) {})
	ctx := context.Background()

	err := fx.manager.Sync(ctx, change.EntityTask, "task:1",
		change.Payload{"title": "mow lawn"}, change.OperationUpdate)
	require.NoError(t, err)

	assert.Equal(t, 0, fx.primary.pushCount())
	assert.Equal(t, 1, fx.manager.Status().PendingChanges)

	fx.manager.TriggerSync(ctx)
	assert.Equal(t, 1, fx.primary.pushCount())
	assert.Equal(t, 0, fx.manager.Status().PendingChanges)
}

func TestManagerOfflineAccumulatesThenDrains(t *testing.T) {
	fx := newManagerFixture(t, func(*Config) {})
	ctx := context.Background()

	fx.manager.SetOnline(ctx, false)

	for i := 0; i < 5; i++ {
		err := fx.manager.Sync(ctx, change.EntityExpense, "exp:offline",
			change.Payload{"revision": float64(i)}, change.OperationUpdate)
		require.NoError(t, err)
	}
	fx.manager.TriggerSync(ctx)
	assert.Equal(t, 0, fx.primary.pushCount(), "nothing may leave while offline")
	assert.Equal(t, 5, fx.manager.Status().PendingChanges)

	fx.manager.SetOnline(ctx, true)
	require.Eventually(t, func() bool {
		return fx.manager.Status().PendingChanges == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 5, fx.primary.pushCount())
}

func TestManagerRetriesThenDropsFailedChange(t *testing.T) {
	fx := newManagerFixture(t, func(c *Config) {
		c.RetryAttempts = 2
	})
	ctx := context.Background()
	failures := collect(fx, EventChangeFailed)

	fx.primary.setFailing(true)
	err := fx.manager.Sync(ctx, change.EntityExpense, "exp:1",
		change.Payload{"amount": 10.0}, change.OperationCreate)
	require.NoError(t, err)

	// Attempts 1 and 2 keep the change queued, attempt 3 exceeds the limit.
	fx.manager.TriggerSync(ctx)
	assert.Equal(t, 1, fx.manager.Status().PendingChanges)
	fx.manager.TriggerSync(ctx)
	assert.Equal(t, 1, fx.manager.Status().PendingChanges)
	fx.manager.TriggerSync(ctx)
	assert.Equal(t, 0, fx.manager.Status().PendingChanges)
	assert.Equal(t, 1, fx.manager.Status().FailedChanges)

	events := failures()
	require.Len(t, events, 3)
	last := events[2].Data.(ChangeEventData)
	assert.True(t, last.Terminal)

	metrics := fx.manager.GetMetrics()
	assert.Equal(t, uint64(3), metrics.FailedSyncs)
	assert.Equal(t, uint64(0), metrics.SuccessfulSyncs)
}

func TestManagerRemoteChangeWithoutLocalVersionApplies(t *testing.T) {
	fx := newManagerFixture(t, func(*Config) {})
	applied := collect(fx, EventRemoteApplied)

	remote := change.ChangeSet{
		EntityType:  change.EntityExpense,
		EntityID:    "exp:new",
		Operation:   change.OperationCreate,
		Payload:     change.Payload{"amount": 25.0},
		UserID:      "user:2",
		HouseholdID: "house:1",
		Timestamp:   time.Now(),
	}
	fx.primary.Dispatch(remote)

	events := applied()
	require.Len(t, events, 1)
	data := events[0].Data.(RemoteEventData)
	assert.False(t, data.Resolved)
	assert.Equal(t, "exp:new", data.Change.EntityID)

	current := fx.tracker.GetCurrentVersion(change.EntityExpense, "exp:new")
	require.NotNil(t, current)
	assert.Equal(t, "user:2", current.CreatedBy)
}

func TestManagerRemoteConflictAutoResolvesLastWriteWins(t *testing.T) {
	fx := newManagerFixture(t, func(*Config) {})
	ctx := context.Background()
	detected := collect(fx, EventConflictDetected)
	resolved := collect(fx, EventConflictResolved)
	applied := collect(fx, EventRemoteApplied)

	err := fx.manager.Sync(ctx, change.EntityExpense, "exp:dup",
		change.Payload{"amount": 10.0, "note": "groceries"}, change.OperationCreate)
	require.NoError(t, err)

	remote := change.ChangeSet{
		EntityType:  change.EntityExpense,
		EntityID:    "exp:dup",
		Operation:   change.OperationUpdate,
		Payload:     change.Payload{"amount": 12.5, "note": "groceries"},
		UserID:      "user:2",
		HouseholdID: "house:1",
		Timestamp:   time.Now().Add(time.Minute),
	}
	fx.primary.Dispatch(remote)

	require.Len(t, detected(), 1)
	require.Len(t, resolved(), 1)

	// Expenses resolve last-write-wins: the newer remote payload wins and is
	// surfaced as the effective update.
	data := resolved()[0].Data.(ConflictEventData)
	assert.Equal(t, 12.5, data.Resolved["amount"])

	appliedEvents := applied()
	require.Len(t, appliedEvents, 1)
	assert.True(t, appliedEvents[0].Data.(RemoteEventData).Resolved)

	current := fx.tracker.GetCurrentVersion(change.EntityExpense, "exp:dup")
	require.NotNil(t, current)
	assert.Equal(t, 12.5, current.Payload["amount"])
	assert.Empty(t, fx.resolver.GetPendingConflicts())
}

func TestManagerIgnoresDuplicateRemoteDelivery(t *testing.T) {
	fx := newManagerFixture(t, func(*Config) {})
	ctx := context.Background()
	applied := collect(fx, EventRemoteApplied)

	require.NoError(t, fx.manager.Sync(ctx, change.EntityExpense, "exp:1",
		change.Payload{"amount": 10.0}, change.OperationCreate))

	// Same content re-delivered by another transport: checksum matches the
	// held version, so nothing is applied or re-versioned.
	fx.primary.Dispatch(change.ChangeSet{
		EntityType:  change.EntityExpense,
		EntityID:    "exp:1",
		Operation:   change.OperationUpdate,
		Payload:     change.Payload{"amount": 10.0},
		UserID:      "user:2",
		HouseholdID: "house:1",
		Timestamp:   time.Now(),
	})

	assert.Empty(t, applied())
	assert.Len(t, fx.tracker.GetVersionHistory(change.EntityExpense, "exp:1"), 1)
}

func TestManagerQueuedEventCarriesVersionChecksum(t *testing.T) {
	fx := newManagerFixture(t, func(*Config) {})
	queued := collect(fx, EventChangeQueued)

	require.NoError(t, fx.manager.Sync(context.Background(), change.EntityExpense, "exp:1",
		change.Payload{"amount": 10.0}, change.OperationCreate))

	events := queued()
	require.Len(t, events, 1)
	data := events[0].Data.(ChangeEventData)
	assert.Equal(t, int64(1), data.Version)
	assert.NotEmpty(t, data.Checksum)
}

func TestManagerManualModeParksConflict(t *testing.T) {
	fx := newManagerFixture(t, func(c *Config) {
		c.ConflictMode = ConflictModeManual
	})
	ctx := context.Background()
	applied := collect(fx, EventRemoteApplied)

	err := fx.manager.Sync(ctx, change.EntityDocument, "doc:1",
		change.Payload{"title": "lease"}, change.OperationCreate)
	require.NoError(t, err)

	fx.primary.Dispatch(change.ChangeSet{
		EntityType:  change.EntityDocument,
		EntityID:    "doc:1",
		Operation:   change.OperationUpdate,
		Payload:     change.Payload{"title": "lease 2026"},
		UserID:      "user:2",
		HouseholdID: "house:1",
		Timestamp:   time.Now().Add(time.Second),
	})

	assert.Empty(t, applied(), "manual mode must not apply a conflicted change")
	pending := fx.resolver.GetPendingConflicts()
	require.Len(t, pending, 1)
	assert.Equal(t, 1, fx.manager.Status().ConflictCount)

	payload, err := fx.manager.ResolveConflict(pending[0].ID, conflict.ResolutionRemote, nil)
	require.NoError(t, err)
	assert.Equal(t, "lease 2026", payload["title"])
	assert.Equal(t, 0, fx.manager.Status().ConflictCount)
}

func TestManagerReviewRequiredRuleParksInAutoMode(t *testing.T) {
	fx := newManagerFixture(t, func(*Config) {})
	ctx := context.Background()
	applied := collect(fx, EventRemoteApplied)

	// Medication edits demand review even under automatic conflict handling.
	require.NoError(t, fx.manager.Sync(ctx, change.EntityMedication, "med:1",
		change.Payload{"dose": "50mg"}, change.OperationCreate))

	fx.primary.Dispatch(change.ChangeSet{
		EntityType:  change.EntityMedication,
		EntityID:    "med:1",
		Operation:   change.OperationUpdate,
		Payload:     change.Payload{"dose": "75mg"},
		UserID:      "user:2",
		HouseholdID: "house:1",
		Timestamp:   time.Now().Add(time.Second),
	})

	assert.Empty(t, applied())
	assert.Len(t, fx.resolver.GetPendingConflicts(), 1)
}

func TestManagerRevertAppendsAndQueues(t *testing.T) {
	fx := newManagerFixture(t, func(*Config) {})
	ctx := context.Background()
	reverts := collect(fx, EventVersionReverted)

	require.NoError(t, fx.manager.Sync(ctx, change.EntityTask, "task:1",
		change.Payload{"title": "dishes", "status": "open"}, change.OperationCreate))
	require.NoError(t, fx.manager.Sync(ctx, change.EntityTask, "task:1",
		change.Payload{"title": "dishes", "status": "done"}, change.OperationUpdate))
	fx.manager.TriggerSync(ctx)
	before := fx.primary.pushCount()

	reverted, err := fx.manager.Revert(ctx, change.EntityTask, "task:1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), reverted.Version)
	assert.Equal(t, "open", reverted.Payload["status"])

	require.Len(t, reverts(), 1)
	require.Eventually(t, func() bool {
		return fx.primary.pushCount() == before+1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "open", fx.primary.lastPush().Payload["status"])
}

func TestManagerRevertFailsForUnknownVersion(t *testing.T) {
	fx := newManagerFixture(t, func(*Config) {})

	_, err := fx.manager.Revert(context.Background(), change.EntityTask, "task:none", 7)
	require.Error(t, err)
}

func TestManagerStartRejectsMissingAdapter(t *testing.T) {
	config := DefaultConfig()
	config.Adapters = []string{"ghost"}
	config.Primary = "ghost"

	_, err := NewManager(config, map[string]adapter.SyncAdapter{},
		identity.Static{User: "u", Household: "h"},
		version.NewTracker(log.Nop()), conflict.NewResolver(log.Nop()),
		bus.New(log.Nop()), log.Nop())
	require.Error(t, err)
}

func TestManagerStopKeepsQueue(t *testing.T) {
	fx := newManagerFixture(t, func(*Config) {})
	ctx := context.Background()

	fx.manager.SetOnline(ctx, false)
	require.NoError(t, fx.manager.Sync(ctx, change.EntityExpense, "exp:1",
		change.Payload{"amount": 1.0}, change.OperationUpdate))

	require.NoError(t, fx.manager.Stop(ctx))
	assert.Equal(t, 1, fx.manager.Status().PendingChanges)
	assert.False(t, fx.primary.IsConnected())
}
