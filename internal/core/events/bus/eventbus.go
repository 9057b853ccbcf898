package bus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/observability/log"
)

// subscription implements Subscription.
type subscription struct {
	id     string
	kind   string
	handle Handler
	active bool
	cancel func()
}

func (s *subscription) ID() string     { return s.id }
func (s *subscription) Kind() string   { return s.kind }
func (s *subscription) IsActive() bool { return s.active }
func (s *subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
	s.active = false
}

// Bus is a thread-safe in-memory observer registry keyed by event kind.
type Bus struct {
	mu sync.RWMutex
	// handlers: kind -> subID -> subscription
	handlers  map[string]map[string]*subscription
	logger    log.Log
	published uint64
	errors    uint64
}

// New creates an empty bus.
func New(logger log.Log) *Bus {
	return &Bus{
		handlers: make(map[string]map[string]*subscription),
		logger:   logger.With(log.String("component", "event_bus")),
	}
}

// Subscribe registers a handler for one event kind (or KindAll).
func (b *Bus) Subscribe(kind string, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[string]*subscription)
	}
	id := uuid.NewString()
	s := &subscription{id: id, kind: kind, handle: handler, active: true}
	s.cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m, ok := b.handlers[kind]; ok {
			delete(m, id)
		}
	}
	b.handlers[kind][id] = s
	return s
}

// Publish delivers the event to every handler of its kind plus the wildcard
// handlers. Handler errors and panics are collected per handler; the
// aggregate is returned for observability but delivery always completes.
func (b *Bus) Publish(event Event) error {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.handlers[event.Kind])+len(b.handlers[KindAll]))
	for _, s := range b.handlers[event.Kind] {
		subs = append(subs, s)
	}
	if event.Kind != KindAll {
		for _, s := range b.handlers[KindAll] {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	var all error
	for _, s := range subs {
		if !s.active {
			continue
		}
		if err := b.deliver(s, event); err != nil {
			b.logger.Error("Event handler failed",
				log.String("kind", event.Kind),
				log.String("subscription", s.id),
				log.Error(err))
			all = errors.Join(all, err)
		}
	}

	b.mu.Lock()
	b.published++
	if all != nil {
		b.errors++
	}
	b.mu.Unlock()
	return all
}

func (b *Bus) deliver(s *subscription, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handle(event)
}

// Stats returns the publish and error counters.
func (b *Bus) Stats() (published, errored uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.published, b.errors
}
