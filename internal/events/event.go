package events

import "time"

// Event is the envelope that flows through the event bus.
// Every order lifecycle step and book update is wrapped in one.
type Event struct {
	ID        string
	Type      EventType
	RunID     string
	Pair      string
	Timestamp time.Time
	Payload   any
}

type EventType string

const (
	// Execution engine lifecycle
	EventOrderPlaced   EventType = "order_placed"
	EventOrderHeld     EventType = "order_held"
	EventOrderRepriced EventType = "order_repriced"
	EventCancelRace    EventType = "cancel_race"
	EventOrderDone     EventType = "order_done"
	// Kraken WS book feed
	EventBookUpdate EventType = "book_update"
)
