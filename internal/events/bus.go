package events

import (
	"sync"

	"github.com/jakobbotsch/krakengo/internal/telemetry"
)

// Handler processes an event. Returning an error logs it but does not stop dispatch.
type Handler func(Event) error

// Bus is a synchronous in-process event bus.
// Subscribers are invoked in registration order on the publisher's goroutine.
// For async processing, handlers should send to their own channel/goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// SubscribeAll registers h for every listed type.
func (b *Bus) SubscribeAll(h Handler, types ...EventType) {
	for _, t := range types {
		b.Subscribe(t, h)
	}
}

// Publish dispatches an event to all registered handlers for its type.
// A nil bus drops the event.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := b.handlers[e.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(e); err != nil {
			telemetry.Warnf("events: %s handler: %v", e.Type, err)
		}
	}
}

// LifecycleTypes lists every event the execution engine emits.
var LifecycleTypes = []EventType{
	EventOrderPlaced, EventOrderHeld, EventOrderRepriced, EventCancelRace, EventOrderDone,
}
