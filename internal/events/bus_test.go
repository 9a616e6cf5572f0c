package events

import (
	"errors"
	"testing"
)

func TestBusDispatchesInRegistrationOrder(t *testing.T) {
	b := NewBus()
	var got []string
	b.Subscribe(EventOrderHeld, func(Event) error { got = append(got, "first"); return errors.New("ignored") })
	b.Subscribe(EventOrderHeld, func(Event) error { got = append(got, "second"); return nil })
	b.Subscribe(EventOrderDone, func(Event) error { got = append(got, "done"); return nil })

	b.Publish(Event{Type: EventOrderHeld})
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("dispatch order = %v", got)
	}
}

func TestSubscribeAllAndNilBus(t *testing.T) {
	b := NewBus()
	n := 0
	b.SubscribeAll(func(Event) error { n++; return nil }, LifecycleTypes...)
	for _, typ := range LifecycleTypes {
		b.Publish(Event{Type: typ})
	}
	b.Publish(Event{Type: EventBookUpdate})
	if n != len(LifecycleTypes) {
		t.Fatalf("handled %d events, want %d", n, len(LifecycleTypes))
	}

	var nilBus *Bus
	nilBus.Publish(Event{Type: EventOrderDone})
}
