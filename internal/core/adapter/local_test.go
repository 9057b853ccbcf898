package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/store"
)

func TestLocalAdapterAppliesPushesToStore(t *testing.T) {
	ctx := context.Background()
	memory := store.NewMemoryStore()
	a := NewLocalAdapter(memory, "Ana", log.Nop())

	require.NoError(t, a.Connect(ctx, "H1", "ana"))
	defer func() { _ = a.Disconnect(ctx) }()

	require.NoError(t, a.Push(ctx, change.ChangeSet{
		EntityType: change.EntityExpense,
		EntityID:   "e1",
		Operation:  change.OperationCreate,
		Payload:    change.Payload{"amount": 42},
	}))

	payload, err := memory.Get(ctx, string(change.EntityExpense), "e1")
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, 42, payload["amount"])

	require.NoError(t, a.Push(ctx, change.ChangeSet{
		EntityType: change.EntityExpense,
		EntityID:   "e1",
		Operation:  change.OperationDelete,
	}))
	payload, err = memory.Get(ctx, string(change.EntityExpense), "e1")
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestLocalAdapterPullReadsChangeLog(t *testing.T) {
	ctx := context.Background()
	memory := store.NewMemoryStore()
	a := NewLocalAdapter(memory, "Ana", log.Nop())
	require.NoError(t, a.Connect(ctx, "H1", "ana"))
	defer func() { _ = a.Disconnect(ctx) }()

	before := time.Now().Add(-time.Second)
	require.NoError(t, a.Push(ctx, change.ChangeSet{
		EntityType: change.EntityTask,
		EntityID:   "t1",
		Operation:  change.OperationCreate,
		Payload:    change.Payload{"title": "Buy milk"},
	}))

	changes, err := a.Pull(ctx, before)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "t1", changes[0].EntityID)
	assert.Equal(t, change.OperationCreate, changes[0].Operation)

	changes, err = a.Pull(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestLocalAdapterRequiresConnection(t *testing.T) {
	a := NewLocalAdapter(store.NewMemoryStore(), "Ana", log.Nop())

	err := a.Push(context.Background(), change.ChangeSet{})
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = a.Pull(context.Background(), time.Time{})
	assert.ErrorIs(t, err, ErrNotConnected)
}
