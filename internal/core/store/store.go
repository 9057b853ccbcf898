// Package store defines the record-store surface the sync engine needs from
// the host application's persistence layer, plus an in-memory reference
// implementation. Durable, indexed storage is the host's concern; the engine
// only reads current payloads, applies resolved ones and lists changes.
package store

import (
	"context"
	"time"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
)

// RecordStore is the engine-facing view of the local table store.
type RecordStore interface {
	// Get returns the current payload for a record, or nil if absent.
	Get(ctx context.Context, collection string, id string) (change.Payload, error)

	// Put writes the payload for a record, replacing any previous value.
	Put(ctx context.Context, collection string, id string, payload change.Payload) error

	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, collection string, id string) error

	// Query returns every payload in a collection matching the predicate.
	Query(ctx context.Context, collection string, predicate func(change.Payload) bool) ([]change.Payload, error)

	// Changes lists every recorded mutation after the given time, oldest
	// first.
	Changes(ctx context.Context, since time.Time) ([]change.ChangeSet, error)
}
