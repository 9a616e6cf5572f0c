package fanout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jakobbotsch/krakengo/internal/events"
)

// Envelope is the wire format for events sent over the fanout WebSocket.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	RunID     string          `json:"run_id,omitempty"`
	Pair      string          `json:"pair,omitempty"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalEvent serializes an Event into a JSON-encoded Envelope.
func MarshalEvent(evt events.Event) ([]byte, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		Type:      string(evt.Type),
		ID:        evt.ID,
		RunID:     evt.RunID,
		Pair:      evt.Pair,
		Timestamp: evt.Timestamp,
		Payload:   payload,
	}
	return json.Marshal(env)
}

// UnmarshalEvent deserializes a JSON Envelope back into a typed Event.
func UnmarshalEvent(data []byte) (events.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	evt := events.Event{
		ID:        env.ID,
		Type:      events.EventType(env.Type),
		RunID:     env.RunID,
		Pair:      env.Pair,
		Timestamp: env.Timestamp,
	}

	var err error
	switch evt.Type {
	case events.EventOrderPlaced:
		evt.Payload, err = decode[events.OrderPlaced](env.Payload)
	case events.EventOrderHeld:
		evt.Payload, err = decode[events.OrderHeld](env.Payload)
	case events.EventOrderRepriced:
		evt.Payload, err = decode[events.OrderRepriced](env.Payload)
	case events.EventCancelRace:
		evt.Payload, err = decode[events.CancelRace](env.Payload)
	case events.EventOrderDone:
		evt.Payload, err = decode[events.OrderDone](env.Payload)
	default:
		return evt, fmt.Errorf("unknown event type: %s", env.Type)
	}
	if err != nil {
		return evt, fmt.Errorf("unmarshal %s: %w", env.Type, err)
	}
	return evt, nil
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
