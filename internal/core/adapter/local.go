package adapter

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/store"
)

var _ SyncAdapter = (*LocalAdapter)(nil)

// LocalAdapter backs the contract with only the local record store: pushes
// are applied directly, pulls read the store's change log. It is the
// fallback transport when the device is alone in the household.
type LocalAdapter struct {
	Core

	store    store.RecordStore
	userName string
}

// NewLocalAdapter creates a local adapter over a record store.
func NewLocalAdapter(recordStore store.RecordStore, userName string, logger log.Log) *LocalAdapter {
	return &LocalAdapter{
		Core:     NewCore("local", logger),
		store:    recordStore,
		userName: userName,
	}
}

func (a *LocalAdapter) Connect(ctx context.Context, householdID, userID string) error {
	if householdID == "" {
		return ErrInvalidHousehold
	}
	if userID == "" {
		return ErrInvalidUser
	}
	if a.IsConnected() {
		if err := a.Disconnect(ctx); err != nil {
			return err
		}
	}

	a.SetConnected(true, householdID, userID)
	a.SetPresence(change.PresenceInfo{
		UserID:   userID,
		UserName: a.userName,
		LastSeen: time.Now(),
		Online:   true,
		Status:   change.PresenceOnline,
	})
	return nil
}

func (a *LocalAdapter) Disconnect(_ context.Context) error {
	if !a.IsConnected() {
		return nil
	}
	_, userID := a.Scope()
	a.RemovePresence(userID)
	a.SetConnected(false, "", "")
	return nil
}

// Push applies the change straight to the record store.
func (a *LocalAdapter) Push(ctx context.Context, cs change.ChangeSet) error {
	if !a.IsConnected() {
		return ErrNotConnected
	}

	collection := string(cs.EntityType)
	var err error
	if cs.Operation == change.OperationDelete {
		err = a.store.Delete(ctx, collection, cs.EntityID)
	} else {
		err = a.store.Put(ctx, collection, cs.EntityID, cs.Payload)
	}
	if err != nil {
		a.SetLastError(err)
		return errors.Wrapf(err, "apply %s to local store", cs.Operation)
	}
	a.CountPush()
	return nil
}

// Pull lists the store's recorded mutations after the given time.
func (a *LocalAdapter) Pull(ctx context.Context, since time.Time) ([]change.ChangeSet, error) {
	if !a.IsConnected() {
		return nil, ErrNotConnected
	}
	return a.store.Changes(ctx, since)
}

// UpdatePresence only maintains the local map; there is nobody to announce to.
func (a *LocalAdapter) UpdatePresence(_ context.Context, status change.PresenceStatus) error {
	if !a.IsConnected() {
		return nil
	}
	_, userID := a.Scope()
	if status == change.PresenceOffline {
		a.RemovePresence(userID)
		return nil
	}
	a.SetPresence(change.PresenceInfo{
		UserID:   userID,
		UserName: a.userName,
		LastSeen: time.Now(),
		Online:   true,
		Status:   status,
	})
	return nil
}
