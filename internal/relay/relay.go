// Package relay implements the websocket endpoint the realtime adapter dials:
// a fan-out of change, presence and heartbeat envelopes between the devices
// of a household. The relay never inspects payloads; conflict handling stays
// on the devices.
package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
)

// Config configures the relay endpoint.
type Config struct {
	Addr string `json:"addr" yaml:"addr"`

	// Token, when set, must match the `token` query parameter of every
	// connecting device.
	Token string `json:"token" yaml:"token"`

	WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8787",
		WriteTimeout: 10 * time.Second,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Relay accepts websocket connections and forwards every envelope to the
// other members of its household room.
type Relay struct {
	config Config
	logger log.Log

	mu    sync.Mutex
	rooms map[string]*room

	server *http.Server
}

// NewRelay creates a relay with the given configuration.
func NewRelay(config Config, logger log.Log) *Relay {
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Relay{
		config: config,
		logger: logger.With(log.String("component", "relay")),
		rooms:  make(map[string]*room),
	}
}

// Handler returns the relay's HTTP handler: /sync upgrades to websocket,
// /healthz reports liveness.
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sync", r.handleSync)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Start serves the relay on the configured address until Stop.
func (r *Relay) Start(ctx context.Context) error {
	r.server = &http.Server{
		Addr:    r.config.Addr,
		Handler: r.Handler(),
	}

	go func() {
		if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("Relay serve failed", log.Error(err))
		}
	}()
	r.logger.Info("Relay listening", log.String("addr", r.config.Addr))
	return nil
}

// Stop shuts the HTTP server down and closes every client connection.
func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.rooms = make(map[string]*room)
	r.mu.Unlock()

	for _, rm := range rooms {
		rm.closeAll()
	}
	if r.server == nil {
		return nil
	}
	if err := r.server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "relay shutdown")
	}
	return nil
}

func (r *Relay) handleSync(w http.ResponseWriter, req *http.Request) {
	if r.config.Token != "" && req.URL.Query().Get("token") != r.config.Token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("Websocket upgrade failed", log.Error(err))
		return
	}

	c := newClient(conn, r, r.config.WriteTimeout)
	r.logger.Debug("Device connected", log.String("remote", conn.RemoteAddr().String()))
	go c.writePump()
	c.readPump()
}

// roomFor returns the household's room, creating it on first use.
func (r *Relay) roomFor(householdID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[householdID]
	if !ok {
		rm = newRoom(householdID)
		r.rooms[householdID] = rm
	}
	return rm
}

// RoomCount reports how many household rooms currently exist.
func (r *Relay) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
