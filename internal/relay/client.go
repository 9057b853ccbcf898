package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/adapter"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
)

const sendQueueSize = 64

// client is one device connection. The household room is adopted from the
// first envelope the device sends; envelopes for other households are
// dropped.
type client struct {
	conn         *websocket.Conn
	relay        *Relay
	writeTimeout time.Duration

	send chan []byte

	mu     sync.Mutex
	room   *room
	closed bool
}

func newClient(conn *websocket.Conn, r *Relay, writeTimeout time.Duration) *client {
	return &client{
		conn:         conn,
		relay:        r,
		writeTimeout: writeTimeout,
		send:         make(chan []byte, sendQueueSize),
	}
}

// readPump consumes frames until the connection drops, routing each envelope
// into the device's household room.
func (c *client) readPump() {
	defer c.close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env adapter.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.relay.logger.Warn("Malformed envelope dropped",
				log.String("remote", c.conn.RemoteAddr().String()),
				log.Error(err))
			continue
		}
		if env.HouseholdID == "" {
			continue
		}

		room := c.adoptRoom(env.HouseholdID)
		if room == nil {
			// Envelope for a household this device does not belong to.
			continue
		}
		room.broadcast(c, data)
	}
}

// adoptRoom joins the household room on the first envelope and pins the
// client to it; later envelopes must match.
func (c *client) adoptRoom(householdID string) *room {
	c.mu.Lock()
	current := c.room
	c.mu.Unlock()

	if current != nil {
		if current.householdID != householdID {
			return nil
		}
		return current
	}

	room := c.relay.roomFor(householdID)
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
	room.add(c)

	c.relay.logger.Debug("Device joined household",
		log.String("household_id", householdID),
		log.Int("members", room.size()))
	return room
}

func (c *client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.relay.logger.Warn("Send queue full, frame dropped",
			log.String("remote", c.conn.RemoteAddr().String()))
	}
}

func (c *client) writePump() {
	for data := range c.send {
		if c.writeTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.close()
			return
		}
	}
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	room := c.room
	close(c.send)
	c.mu.Unlock()

	if room != nil {
		room.remove(c)
	}
	_ = c.conn.Close()
}
