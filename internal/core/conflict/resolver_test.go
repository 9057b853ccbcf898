package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
)

func newTestResolver() *Resolver {
	return NewResolver(log.Nop())
}

func TestDetectConflictEqualPayloadsReturnsNil(t *testing.T) {
	r := newTestResolver()

	local := change.Payload{"title": "Buy milk", "updatedAt": time.Unix(100, 0)}
	remote := change.Payload{"title": "Buy milk", "updatedAt": time.Unix(999, 0), "syncedAt": time.Unix(999, 0)}

	// Volatile bookkeeping differences are not a conflict, whatever the
	// timestamps say.
	c := r.DetectConflict(change.EntityTask, "t1", local, remote, time.Unix(100, 0), time.Unix(999, 0))
	assert.Nil(t, c)
	assert.Empty(t, r.GetPendingConflicts())
}

func TestDetectConflictHandlesTypedSlicePayloads(t *testing.T) {
	r := newTestResolver()

	local := change.Payload{"title": "groceries", "tags": []string{"food"}}
	remote := change.Payload{"title": "groceries", "tags": []string{"food"}}
	assert.Nil(t, r.DetectConflict(change.EntityExpense, "e1", local, remote,
		time.Unix(100, 0), time.Unix(200, 0)))

	remote["tags"] = []string{"travel"}
	c := r.DetectConflict(change.EntityExpense, "e1", local, remote,
		time.Unix(100, 0), time.Unix(200, 0))
	require.NotNil(t, c)
	assert.Equal(t, KindUpdate, c.Kind)
}

func TestDetectConflictClassifiesKind(t *testing.T) {
	r := newTestResolver()
	now := time.Now()

	tests := []struct {
		name   string
		local  change.Payload
		remote change.Payload
		want   Kind
	}{
		{"both present", change.Payload{"a": 1}, change.Payload{"a": 2}, KindUpdate},
		{"local missing", nil, change.Payload{"a": 2}, KindCreate},
		{"remote missing", change.Payload{"a": 1}, nil, KindDelete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := r.DetectConflict(change.EntityExpense, "e-"+tt.name, tt.local, tt.remote, now, now)
			require.NotNil(t, c)
			assert.Equal(t, tt.want, c.Kind)
			assert.Equal(t, StatusPending, c.Status)
		})
	}
}

func TestLastWriteWinsIsDeterministic(t *testing.T) {
	r := newTestResolver()

	local := change.Payload{"amount": 10}
	remote := change.Payload{"amount": 20}

	// Remote newer: remote wins.
	c := r.DetectConflict(change.EntityExpense, "e1", local, remote, time.Unix(100, 0), time.Unix(200, 0))
	require.NotNil(t, c)
	resolved, err := r.ResolveConflict(c.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 20, resolved["amount"])

	// Local newer: local wins.
	c = r.DetectConflict(change.EntityExpense, "e2", local, remote, time.Unix(300, 0), time.Unix(200, 0))
	require.NotNil(t, c)
	resolved, err = r.ResolveConflict(c.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 10, resolved["amount"])

	// Tie: remote wins.
	c = r.DetectConflict(change.EntityExpense, "e3", local, remote, time.Unix(200, 0), time.Unix(200, 0))
	require.NotNil(t, c)
	resolved, err = r.ResolveConflict(c.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 20, resolved["amount"])
}

func TestFirstWriteWins(t *testing.T) {
	r := newTestResolver()
	r.SetRule(change.EntityExpense, Rule{Strategy: StrategyFirstWriteWins, AutoResolve: true})

	c := r.DetectConflict(change.EntityExpense, "e1",
		change.Payload{"amount": 10}, change.Payload{"amount": 20},
		time.Unix(100, 0), time.Unix(200, 0))
	require.NotNil(t, c)

	resolved, err := r.ResolveConflict(c.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 10, resolved["amount"])
}

func TestPreferFixedSide(t *testing.T) {
	r := newTestResolver()
	now := time.Now()

	// Medications default to prefer-remote.
	c := r.DetectConflict(change.EntityMedication, "m1",
		change.Payload{"dose": "5mg"}, change.Payload{"dose": "10mg"}, now, now.Add(-time.Hour))
	require.NotNil(t, c)
	resolved, err := r.ResolveConflict(c.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "10mg", resolved["dose"])

	r.SetRule(change.EntityMedication, Rule{Strategy: StrategyPreferLocal, AutoResolve: true})
	c = r.DetectConflict(change.EntityMedication, "m2",
		change.Payload{"dose": "5mg"}, change.Payload{"dose": "10mg"}, now, now.Add(time.Hour))
	require.NotNil(t, c)
	resolved, err = r.ResolveConflict(c.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "5mg", resolved["dose"])
}

func TestAutoMergeWithPriorityField(t *testing.T) {
	r := newTestResolver()

	// The task rule is merge with "status" as a priority field: the remote
	// update is newer, so its status wins and the untouched title survives.
	local := change.Payload{"title": "Buy milk", "status": "pending"}
	remote := change.Payload{"title": "Buy milk", "status": "done"}

	c := r.DetectConflict(change.EntityTask, "42", local, remote, time.Unix(100, 0), time.Unix(200, 0))
	require.NotNil(t, c)

	resolved, err := r.ResolveConflict(c.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", resolved["title"])
	assert.Equal(t, "done", resolved["status"])
	assert.Contains(t, resolved, "updatedAt")
	assert.Contains(t, resolved, "syncedAt")
}

func TestAutoMergePriorityFieldKeepsNewerLocal(t *testing.T) {
	r := newTestResolver()

	local := change.Payload{"title": "Buy milk", "status": "done"}
	remote := change.Payload{"title": "Buy oat milk", "status": "pending"}

	// Local is newer: the priority field keeps the local value while the
	// non-priority title still defaults to remote.
	c := r.DetectConflict(change.EntityTask, "t1", local, remote, time.Unix(300, 0), time.Unix(200, 0))
	require.NotNil(t, c)

	resolved, err := r.ResolveConflict(c.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", resolved["status"])
	assert.Equal(t, "Buy oat milk", resolved["title"])
}

func TestMergeFieldListRestrictsMerge(t *testing.T) {
	r := newTestResolver()
	r.SetRule(change.EntityTask, Rule{Strategy: StrategyMerge, AutoResolve: true, MergeFields: []string{"status"}})

	local := change.Payload{"title": "Buy milk", "status": "pending"}
	remote := change.Payload{"title": "Something else", "status": "done"}

	c := r.DetectConflict(change.EntityTask, "t1", local, remote, time.Unix(100, 0), time.Unix(200, 0))
	require.NotNil(t, c)

	resolved, err := r.ResolveConflict(c.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", resolved["status"])
	assert.Equal(t, "Buy milk", resolved["title"])
}

func TestManualRuleRequiresExplicitResolution(t *testing.T) {
	r := newTestResolver()
	now := time.Now()

	c := r.DetectConflict(change.EntityDocument, "d1",
		change.Payload{"name": "lease.pdf"}, change.Payload{"name": "lease-v2.pdf"}, now, now)
	require.NotNil(t, c)

	_, err := r.ResolveConflict(c.ID, "", nil)
	assert.ErrorIs(t, err, ErrManualResolutionRequired)

	// Still pending after the refusal.
	assert.Len(t, r.GetPendingConflicts(), 1)

	resolved, err := r.ResolveConflict(c.ID, ResolutionManual, change.Payload{"name": "lease-final.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "lease-final.pdf", resolved["name"])
	assert.Empty(t, r.GetPendingConflicts())
}

func TestManualResolutionWithoutPayloadFails(t *testing.T) {
	r := newTestResolver()
	now := time.Now()

	c := r.DetectConflict(change.EntityDocument, "d1",
		change.Payload{"name": "a"}, change.Payload{"name": "b"}, now, now)
	require.NotNil(t, c)

	_, err := r.ResolveConflict(c.ID, ResolutionManual, nil)
	assert.ErrorIs(t, err, ErrMissingResolvedPayload)
}

func TestResolveUnknownConflictFails(t *testing.T) {
	r := newTestResolver()
	_, err := r.ResolveConflict("nope", "", nil)
	assert.ErrorIs(t, err, ErrConflictNotFound)
}

func TestResolveWithoutRuleFails(t *testing.T) {
	r := newTestResolver()
	now := time.Now()

	c := r.DetectConflict(change.EntityType("pets"), "p1",
		change.Payload{"name": "rex"}, change.Payload{"name": "bob"}, now, now)
	require.NotNil(t, c)

	_, err := r.ResolveConflict(c.ID, "", nil)
	assert.ErrorIs(t, err, ErrNoRule)
}

func TestRegistryIntrospection(t *testing.T) {
	r := newTestResolver()
	now := time.Now()

	c1 := r.DetectConflict(change.EntityExpense, "e1", change.Payload{"a": 1}, change.Payload{"a": 2}, now, now)
	c2 := r.DetectConflict(change.EntityTask, "t1", change.Payload{"a": 1}, change.Payload{"a": 2}, now, now)
	require.NotNil(t, c1)
	require.NotNil(t, c2)

	byEntity := r.GetConflictsByEntity(change.EntityTask, "t1")
	require.Len(t, byEntity, 1)
	assert.Equal(t, c2.ID, byEntity[0].ID)

	_, err := r.ResolveConflict(c1.ID, "", nil)
	require.NoError(t, err)

	stats := r.GetConflictStats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 1, stats.ByEntity[change.EntityExpense])

	assert.Equal(t, 1, r.ClearResolvedConflicts())
	stats = r.GetConflictStats()
	assert.Equal(t, 1, stats.Total)
}

func TestResolvedPayloadIsDefensiveCopy(t *testing.T) {
	r := newTestResolver()

	c := r.DetectConflict(change.EntityExpense, "e1",
		change.Payload{"amount": 10}, change.Payload{"amount": 20},
		time.Unix(100, 0), time.Unix(200, 0))
	require.NotNil(t, c)

	resolved, err := r.ResolveConflict(c.ID, "", nil)
	require.NoError(t, err)
	resolved["amount"] = 999

	stored, ok := r.GetConflict(c.ID)
	require.True(t, ok)
	assert.Equal(t, 20, stored.ResolvedPayload["amount"])
}

func TestClearConflictsOlderThan(t *testing.T) {
	r := newTestResolver()

	r.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	stale := r.DetectConflict(change.EntityTask, "t-old",
		change.Payload{"status": "open"}, change.Payload{"status": "done"},
		time.Unix(100, 0), time.Unix(200, 0))
	require.NotNil(t, stale)

	r.now = time.Now
	fresh := r.DetectConflict(change.EntityTask, "t-new",
		change.Payload{"status": "open"}, change.Payload{"status": "done"},
		time.Unix(100, 0), time.Unix(200, 0))
	require.NotNil(t, fresh)

	assert.Equal(t, 1, r.ClearConflictsOlderThan(24*time.Hour))

	_, ok := r.GetConflict(stale.ID)
	assert.False(t, ok)
	_, ok = r.GetConflict(fresh.ID)
	assert.True(t, ok)
}
