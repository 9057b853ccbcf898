// Package bus is the typed observer registry the sync manager publishes its
// notifications through. Handlers subscribe by event kind; a failing or
// panicking handler is isolated and logged so it cannot block delivery to the
// others.
package bus

import "time"

// Event is one notification moving through the bus.
type Event struct {
	Kind      string
	Source    string
	Timestamp time.Time
	Data      any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind, source string, data any) Event {
	return Event{Kind: kind, Source: source, Timestamp: time.Now(), Data: data}
}

// Handler consumes one event. A returned error is aggregated into the
// publish result but never stops delivery to other handlers.
type Handler func(Event) error

// Subscription is a live handler registration.
type Subscription interface {
	ID() string
	Kind() string
	IsActive() bool
	Cancel()
}

// KindAll subscribes a handler to every event kind.
const KindAll = "*"
