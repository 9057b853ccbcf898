package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "expense", "exp:1", change.Payload{"amount": 10.0}))

	got, err := s.Get(ctx, "expense", "exp:1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, got["amount"])

	// Mutating the returned payload must not touch the stored one.
	got["amount"] = 999.0
	again, err := s.Get(ctx, "expense", "exp:1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, again["amount"])
}

func TestMemoryStoreGetAbsent(t *testing.T) {
	s := NewMemoryStore()

	got, err := s.Get(context.Background(), "expense", "exp:missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "task", "task:1", change.Payload{"title": "dishes"}))
	require.NoError(t, s.Delete(ctx, "task", "task:1"))
	require.NoError(t, s.Delete(ctx, "task", "task:1"), "deleting absent record is not an error")

	got, err := s.Get(ctx, "task", "task:1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreQuery(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "expense", "exp:1", change.Payload{"amount": 10.0}))
	require.NoError(t, s.Put(ctx, "expense", "exp:2", change.Payload{"amount": 50.0}))

	expensive, err := s.Query(ctx, "expense", func(p change.Payload) bool {
		return p["amount"].(float64) > 20
	})
	require.NoError(t, err)
	require.Len(t, expensive, 1)
	assert.Equal(t, 50.0, expensive[0]["amount"])

	all, err := s.Query(ctx, "expense", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStoreChangeLog(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	start := time.Now().Add(-time.Second)

	require.NoError(t, s.Put(ctx, "expense", "exp:1", change.Payload{"amount": 10.0}))
	require.NoError(t, s.Put(ctx, "expense", "exp:1", change.Payload{"amount": 12.0}))
	require.NoError(t, s.Delete(ctx, "expense", "exp:1"))

	changes, err := s.Changes(ctx, start)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, change.OperationCreate, changes[0].Operation)
	assert.Equal(t, change.OperationUpdate, changes[1].Operation)
	assert.Equal(t, change.OperationDelete, changes[2].Operation)

	none, err := s.Changes(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, none)
}
