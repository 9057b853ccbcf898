package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
)

var _ SyncAdapter = (*BackendAdapter)(nil)

// BackendAdapter is the non-functional cloud stand-in. It honors the full
// contract so a future networked backend can slot in behind the same
// interface, but pushes only accumulate in an in-memory outbox and pulls
// return nothing. No wire protocol is defined here.
type BackendAdapter struct {
	Core

	userName string

	mu     sync.Mutex
	outbox []change.ChangeSet
}

// NewBackendAdapter creates the cloud stub.
func NewBackendAdapter(userName string, logger log.Log) *BackendAdapter {
	return &BackendAdapter{
		Core:     NewCore("backend", logger),
		userName: userName,
	}
}

func (a *BackendAdapter) Connect(ctx context.Context, householdID, userID string) error {
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
	a.Logger().Debug("Backend stub connected", log.String("household_id", householdID))
	return nil
}

func (a *BackendAdapter) Disconnect(_ context.Context) error {
	if !a.IsConnected() {
		return nil
	}
	_, userID := a.Scope()
	a.RemovePresence(userID)
	a.SetConnected(false, "", "")
	return nil
}

// Push parks the change in the outbox for whatever backend eventually exists.
func (a *BackendAdapter) Push(_ context.Context, cs change.ChangeSet) error {
	if !a.IsConnected() {
		return ErrNotConnected
	}
	a.mu.Lock()
	a.outbox = append(a.outbox, cs)
	a.mu.Unlock()
	a.CountPush()
	return nil
}

// Pull returns nothing: the stub has no remote to ask.
func (a *BackendAdapter) Pull(_ context.Context, _ time.Time) ([]change.ChangeSet, error) {
	if !a.IsConnected() {
		return nil, ErrNotConnected
	}
	return nil, nil
}

func (a *BackendAdapter) UpdatePresence(_ context.Context, status change.PresenceStatus) error {
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

// Outbox returns a copy of everything pushed so far.
func (a *BackendAdapter) Outbox() []change.ChangeSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]change.ChangeSet, len(a.outbox))
	copy(out, a.outbox)
	return out
}
