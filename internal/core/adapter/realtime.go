package adapter

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
)

var _ SyncAdapter = (*RealtimeAdapter)(nil)

// RealtimeConfig configures the websocket transport.
type RealtimeConfig struct {
	// URL of the relay endpoint. Empty leaves the adapter in stub mode: it
	// connects logically but moves no traffic.
	URL string `json:"url" yaml:"url"`

	DialTimeout          time.Duration `json:"dialTimeout" yaml:"dialTimeout"`
	WriteTimeout         time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
	MaxReconnectAttempts int           `json:"maxReconnectAttempts" yaml:"maxReconnectAttempts"`
	ReconnectBackoff     time.Duration `json:"reconnectBackoff" yaml:"reconnectBackoff"`
}

// DefaultRealtimeConfig returns the stub-mode defaults.
func DefaultRealtimeConfig() RealtimeConfig {
	return RealtimeConfig{
		DialTimeout:          10 * time.Second,
		WriteTimeout:         10 * time.Second,
		MaxReconnectAttempts: 3,
		ReconnectBackoff:     500 * time.Millisecond,
	}
}

// RealtimeAdapter speaks the broadcast envelope over a websocket to a relay
// shared by the household's devices. Without a configured URL it is the
// contract-complete stand-in the engine can enable before a backend exists.
type RealtimeAdapter struct {
	Core

	config   RealtimeConfig
	userName string

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	stop    chan struct{}

	bytesSent     uint64
	bytesReceived uint64
}

// NewRealtimeAdapter creates a realtime adapter with the given transport
// configuration.
func NewRealtimeAdapter(config RealtimeConfig, userName string, logger log.Log) *RealtimeAdapter {
	if config.DialTimeout == 0 {
		config.DialTimeout = DefaultRealtimeConfig().DialTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultRealtimeConfig().WriteTimeout
	}
	if config.ReconnectBackoff == 0 {
		config.ReconnectBackoff = DefaultRealtimeConfig().ReconnectBackoff
	}
	return &RealtimeAdapter{
		Core:     NewCore("realtime", logger),
		config:   config,
		userName: userName,
	}
}

// Connect dials the relay (retrying with backoff up to the configured attempt
// count) and announces presence. Either the adapter ends up fully connected
// or fully disconnected; stub mode skips the dial entirely.
func (a *RealtimeAdapter) Connect(ctx context.Context, householdID, userID string) error {
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

	if a.config.URL != "" {
		conn, err := a.dial(ctx)
		if err != nil {
			a.SetLastError(err)
			return errors.Wrap(ErrConnectFailed, err.Error())
		}
		a.connMu.Lock()
		a.conn = conn
		a.connMu.Unlock()
	}

	a.stop = make(chan struct{})
	a.SetConnected(true, householdID, userID)
	a.SetPresence(change.PresenceInfo{
		UserID:   userID,
		UserName: a.userName,
		LastSeen: time.Now(),
		Online:   true,
		Status:   change.PresenceOnline,
	})
	if err := a.UpdatePresence(ctx, change.PresenceOnline); err != nil {
		a.teardown()
		return err
	}

	if a.config.URL != "" {
		go a.readLoop(a.stop)
	}
	go a.heartbeatLoop(a.stop)

	a.Logger().Info("Realtime transport connected",
		log.String("household_id", householdID),
		log.Bool("stub", a.config.URL == ""))
	return nil
}

func (a *RealtimeAdapter) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: a.config.DialTimeout}

	var lastErr error
	backoff := a.config.ReconnectBackoff
	attempts := a.config.MaxReconnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		conn, _, err := dialer.DialContext(ctx, a.config.URL, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		a.Logger().Warn("Relay dial failed",
			log.String("url", a.config.URL),
			log.Int("attempt", i+1),
			log.Error(err))
	}
	return nil, errors.Wrapf(lastErr, "dial %s after %d attempts", a.config.URL, attempts)
}

// Disconnect announces offline presence, then tears the transport down.
func (a *RealtimeAdapter) Disconnect(ctx context.Context) error {
	if !a.IsConnected() {
		return nil
	}
	_ = a.UpdatePresence(ctx, change.PresenceOffline)
	a.teardown()
	a.Logger().Info("Realtime transport disconnected")
	return nil
}

func (a *RealtimeAdapter) teardown() {
	a.connMu.Lock()
	if a.stop != nil {
		close(a.stop)
		a.stop = nil
	}
	if a.conn != nil {
		_ = a.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = a.conn.Close()
		a.conn = nil
	}
	a.connMu.Unlock()
	a.SetConnected(false, "", "")
}

// Push sends a change envelope over the websocket. Stub mode accepts and
// drops the change.
func (a *RealtimeAdapter) Push(_ context.Context, cs change.ChangeSet) error {
	if !a.IsConnected() {
		return ErrNotConnected
	}
	householdID, userID := a.Scope()
	env, err := NewEnvelope(MessageChange, householdID, userID, cs)
	if err != nil {
		return errors.Wrap(err, "encode change envelope")
	}
	if err := a.writeEnvelope(env); err != nil {
		a.SetLastError(err)
		return errors.Wrap(ErrPushFailed, err.Error())
	}
	a.CountPush()
	return nil
}

// Pull returns an empty set: realtime delivery is push-based.
func (a *RealtimeAdapter) Pull(_ context.Context, _ time.Time) ([]change.ChangeSet, error) {
	if !a.IsConnected() {
		return nil, ErrNotConnected
	}
	return nil, nil
}

func (a *RealtimeAdapter) UpdatePresence(_ context.Context, status change.PresenceStatus) error {
	if !a.IsConnected() {
		return nil
	}
	householdID, userID := a.Scope()
	env, err := NewEnvelope(MessagePresence, householdID, userID, PresenceData{Status: status, UserName: a.userName})
	if err != nil {
		return errors.Wrap(err, "encode presence envelope")
	}
	if err := a.writeEnvelope(env); err != nil {
		a.SetLastError(err)
	}

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

// writeEnvelope serializes one envelope as a text frame. Writes are
// serialized by a dedicated mutex so concurrent pushes interleave cleanly.
func (a *RealtimeAdapter) writeEnvelope(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	// writeMu is held across both the conn snapshot and the write, so a
	// reconnect cannot swap the connection mid-frame.
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.connMu.Lock()
	conn := a.conn
	a.connMu.Unlock()
	if conn == nil {
		// Stub mode: nothing on the wire.
		return nil
	}

	if a.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(a.config.WriteTimeout))
	}
	start := time.Now()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "write envelope")
	}
	atomic.AddUint64(&a.bytesSent, uint64(len(data)))
	a.MarkHeartbeat(time.Since(start))
	return nil
}

// readLoop consumes envelopes until the transport closes, reconnecting with
// backoff on transient failures.
func (a *RealtimeAdapter) readLoop(stop <-chan struct{}) {
	for {
		a.connMu.Lock()
		conn := a.conn
		a.connMu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			a.Logger().Warn("Relay read failed", log.Error(err))
			if !a.reconnect(stop) {
				a.SetLastError(errors.Wrap(err, "relay connection lost"))
				a.teardown()
				return
			}
			continue
		}
		atomic.AddUint64(&a.bytesReceived, uint64(len(data)))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			a.Logger().Warn("Malformed relay envelope", log.Error(err))
			continue
		}
		a.receive(env)
	}
}

// reconnect tries to re-establish the websocket. Returns false once the
// attempt budget is exhausted; no further automatic retries happen until an
// explicit reconnect.
func (a *RealtimeAdapter) reconnect(stop <-chan struct{}) bool {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.DialTimeout*time.Duration(a.config.MaxReconnectAttempts+1))
	defer cancel()

	select {
	case <-stop:
		return false
	default:
	}

	conn, err := a.dial(ctx)
	if err != nil {
		return false
	}
	// Same lock order as writeEnvelope; an in-flight write finishes on the
	// old connection before the swap.
	a.writeMu.Lock()
	a.connMu.Lock()
	old := a.conn
	a.conn = conn
	a.connMu.Unlock()
	a.writeMu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	a.Logger().Info("Relay connection re-established")
	return true
}

// receive mirrors the broadcast adapter's envelope handling.
func (a *RealtimeAdapter) receive(env Envelope) {
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

// heartbeatLoop keeps the relay (and local presence) warm while connected.
func (a *RealtimeAdapter) heartbeatLoop(stop <-chan struct{}) {
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
			if err := a.writeEnvelope(env); err != nil {
				a.SetLastError(err)
				continue
			}
			a.MarkHeartbeat(0)
		}
	}
}
