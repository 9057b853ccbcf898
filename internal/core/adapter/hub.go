package adapter

import (
	"sync"

	"github.com/google/uuid"
)

// BroadcastHub is the process-wide publish/subscribe channel the broadcast
// adapter relays through, playing the role the browser's cross-tab broadcast
// channel plays for the web client. Channels are named by household scope;
// every subscriber on a channel sees every publish, including its own (the
// adapter filters self-originated envelopes).
type BroadcastHub struct {
	mu       sync.RWMutex
	channels map[string]map[string]func(Envelope)
}

// NewBroadcastHub creates an empty hub.
func NewBroadcastHub() *BroadcastHub {
	return &BroadcastHub{
		channels: make(map[string]map[string]func(Envelope)),
	}
}

// Subscribe registers a listener on a named channel and returns an
// unsubscribe function.
func (h *BroadcastHub) Subscribe(channel string, listener func(Envelope)) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	listeners := h.channels[channel]
	if listeners == nil {
		listeners = make(map[string]func(Envelope))
		h.channels[channel] = listeners
	}
	id := uuid.NewString()
	listeners[id] = listener

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if m := h.channels[channel]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(h.channels, channel)
			}
		}
	}
}

// Publish delivers an envelope to every listener on the channel.
func (h *BroadcastHub) Publish(channel string, env Envelope) {
	h.mu.RLock()
	listeners := make([]func(Envelope), 0, len(h.channels[channel]))
	for _, l := range h.channels[channel] {
		listeners = append(listeners, l)
	}
	h.mu.RUnlock()

	for _, l := range listeners {
		l(env)
	}
}
