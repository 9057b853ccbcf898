package adapter

import (
	"encoding/json"
	"time"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
)

// MessageType is the kind of envelope moving over a broadcast-style channel.
type MessageType string

const (
	MessageChange    MessageType = "change"
	MessagePresence  MessageType = "presence"
	MessageHeartbeat MessageType = "heartbeat"
)

// Envelope is the wire format shared by the broadcast and realtime adapters.
// Receivers discard any envelope whose household id is not their own scope or
// whose user id equals their own.
type Envelope struct {
	Type        MessageType     `json:"type"`
	HouseholdID string          `json:"householdId"`
	UserID      string          `json:"userId"`
	Timestamp   time.Time       `json:"timestamp"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// PresenceData is the payload of a presence envelope.
type PresenceData struct {
	Status   change.PresenceStatus `json:"status"`
	UserName string                `json:"userName"`
}

// HeartbeatData is the payload of a heartbeat envelope.
type HeartbeatData struct {
	UserName string `json:"userName"`
}

// NewEnvelope builds an envelope, marshaling the payload into Data.
func NewEnvelope(msgType MessageType, householdID, userID string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:        msgType,
		HouseholdID: householdID,
		UserID:      userID,
		Timestamp:   time.Now(),
		Data:        raw,
	}, nil
}
