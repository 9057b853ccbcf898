package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
)

var _ SyncAdapter = (*BroadcastAdapter)(nil)

// BroadcastAdapter relays changes and presence between sync scopes of the
// same device through a BroadcastHub channel named after the household id.
// It is the reference transport: the one adapter with a real, working relay.
type BroadcastAdapter struct {
	Core

	hub      *BroadcastHub
	userName string

	unsubscribe func()
	stopBeat    chan struct{}
}

// NewBroadcastAdapter creates a broadcast adapter bound to a hub.
func NewBroadcastAdapter(hub *BroadcastHub, userName string, logger log.Log) *BroadcastAdapter {
	return &BroadcastAdapter{
		Core:     NewCore("broadcast", logger),
		hub:      hub,
		userName: userName,
	}
}

func channelName(householdID string) string {
	return "sync_" + householdID
}

// Connect joins the household channel and announces online presence.
// Reconnecting while connected tears the old subscription down first.
func (a *BroadcastAdapter) Connect(ctx context.Context, householdID, userID string) error {
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

	// Scope must be pinned before the first envelope can arrive, or receive
	// would compare it against an empty household and drop it.
	a.SetConnected(true, householdID, userID)
	a.unsubscribe = a.hub.Subscribe(channelName(householdID), a.receive)
	a.stopBeat = make(chan struct{})

	// Own presence is tracked too so the UI can show the full household.
	a.SetPresence(change.PresenceInfo{
		UserID:   userID,
		UserName: a.userName,
		LastSeen: time.Now(),
		Online:   true,
		Status:   change.PresenceOnline,
	})
	if err := a.UpdatePresence(ctx, change.PresenceOnline); err != nil {
		return err
	}

	go a.heartbeatLoop(a.stopBeat)

	a.Logger().Info("Broadcast channel joined",
		log.String("household_id", householdID),
		log.String("user_id", userID))
	return nil
}

// Disconnect announces offline presence before leaving the channel. Safe to
// call even if never connected.
func (a *BroadcastAdapter) Disconnect(ctx context.Context) error {
	if !a.IsConnected() {
		return nil
	}

	// Offline announcement goes out while the channel is still up.
	_ = a.UpdatePresence(ctx, change.PresenceOffline)

	close(a.stopBeat)
	a.unsubscribe()
	a.unsubscribe = nil
	a.SetConnected(false, "", "")

	a.Logger().Info("Broadcast channel left")
	return nil
}

// Push relays a change set to the other subscribers on the channel.
func (a *BroadcastAdapter) Push(_ context.Context, cs change.ChangeSet) error {
	if !a.IsConnected() {
		return ErrNotConnected
	}
	householdID, userID := a.Scope()

	env, err := NewEnvelope(MessageChange, householdID, userID, cs)
	if err != nil {
		return errors.Wrap(err, "encode change envelope")
	}
	a.hub.Publish(channelName(householdID), env)
	a.CountPush()
	return nil
}

// Pull returns an empty set: broadcast delivery is push-based, changes arrive
// via Subscribe.
func (a *BroadcastAdapter) Pull(_ context.Context, _ time.Time) ([]change.ChangeSet, error) {
	if !a.IsConnected() {
		return nil, ErrNotConnected
	}
	return nil, nil
}

// UpdatePresence broadcasts the local user's status. Offline removes the user
// from the local presence map rather than marking it.
func (a *BroadcastAdapter) UpdatePresence(_ context.Context, status change.PresenceStatus) error {
	if !a.IsConnected() {
		// Presence updates while disconnected are a no-op.
		return nil
	}
	householdID, userID := a.Scope()

	env, err := NewEnvelope(MessagePresence, householdID, userID, PresenceData{Status: status, UserName: a.userName})
	if err != nil {
		return errors.Wrap(err, "encode presence envelope")
	}
	a.hub.Publish(channelName(householdID), env)

	if status == change.PresenceOffline {
		a.RemovePresence(userID)
	} else {
		a.SetPresence(change.PresenceInfo{
			UserID:   userID,
			UserName: a.userName,
			LastSeen: time.Now(),
			Online:   true,
			Status:   status,
		})
	}
	return nil
}

// receive handles every envelope on the channel, discarding foreign-household
// and self-originated traffic.
func (a *BroadcastAdapter) receive(env Envelope) {
	householdID, userID := a.Scope()
	if env.HouseholdID != householdID || env.UserID == userID {
		return
	}

	switch env.Type {
	case MessageChange:
		var cs change.ChangeSet
		if err := json.Unmarshal(env.Data, &cs); err != nil {
			a.Logger().Warn("Malformed change envelope", log.Error(err))
			return
		}
		a.Dispatch(cs)
	case MessagePresence:
		var data PresenceData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			a.Logger().Warn("Malformed presence envelope", log.Error(err))
			return
		}
		if data.Status == change.PresenceOffline {
			a.RemovePresence(env.UserID)
			return
		}
		a.SetPresence(change.PresenceInfo{
			UserID:   env.UserID,
			UserName: data.UserName,
			LastSeen: env.Timestamp,
			Online:   true,
			Status:   data.Status,
		})
	case MessageHeartbeat:
		var data HeartbeatData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return
		}
		a.SetPresence(change.PresenceInfo{
			UserID:   env.UserID,
			UserName: data.UserName,
			LastSeen: env.Timestamp,
			Online:   true,
			Status:   change.PresenceOnline,
		})
	}
}

// heartbeatLoop keeps presence fresh while connected.
func (a *BroadcastAdapter) heartbeatLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !a.IsConnected() {
				return
			}
			householdID, userID := a.Scope()
			env, err := NewEnvelope(MessageHeartbeat, householdID, userID, HeartbeatData{UserName: a.userName})
			if err != nil {
				continue
			}
			a.hub.Publish(channelName(householdID), env)
			a.MarkHeartbeat(0)
		}
	}
}
