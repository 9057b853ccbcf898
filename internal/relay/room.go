package relay

import "sync"

// room is the set of live connections belonging to one household.
type room struct {
	householdID string

	mu      sync.Mutex
	clients map[*client]struct{}
}

func newRoom(householdID string) *room {
	return &room{
		householdID: householdID,
		clients:     make(map[*client]struct{}),
	}
}

func (r *room) add(c *client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
}

func (r *room) remove(c *client) {
	r.mu.Lock()
	delete(r.clients, c)
	r.mu.Unlock()
}

func (r *room) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// broadcast queues the frame on every member except the sender. Members with
// a full send queue are skipped rather than blocking the room.
func (r *room) broadcast(sender *client, data []byte) {
	r.mu.Lock()
	members := make([]*client, 0, len(r.clients))
	for c := range r.clients {
		if c != sender {
			members = append(members, c)
		}
	}
	r.mu.Unlock()

	for _, c := range members {
		c.enqueue(data)
	}
}

func (r *room) closeAll() {
	r.mu.Lock()
	members := make([]*client, 0, len(r.clients))
	for c := range r.clients {
		members = append(members, c)
	}
	r.clients = make(map[*client]struct{})
	r.mu.Unlock()

	for _, c := range members {
		c.close()
	}
}
