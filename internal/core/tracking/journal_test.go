package tracking

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jakobbotsch/krakengo/internal/core/market"
	"github.com/jakobbotsch/krakengo/internal/events"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "history", "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRecordsBusEvents(t *testing.T) {
	j := openTestJournal(t)
	bus := events.NewBus()
	j.Attach(bus)

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	publish := func(typ events.EventType, payload any) {
		at = at.Add(time.Second)
		bus.Publish(events.Event{Type: typ, RunID: "run-1", Pair: "XBTUSD", Timestamp: at, Payload: payload})
	}

	publish(events.EventOrderPlaced, events.OrderPlaced{TxID: "O1", Side: market.Buy, Price: decimal.RequireFromString("100.5"), Volume: decimal.NewFromInt(2)})
	publish(events.EventCancelRace, events.CancelRace{TxID: "O1", Attempt: 1, Error: "EOrder:Unknown order"})
	publish(events.EventOrderDone, events.OrderDone{TxID: "O1", Status: market.StatusClosed, VolumeExecuted: decimal.NewFromInt(2)})
	bus.Publish(events.Event{Type: events.EventBookUpdate, Pair: "XBTUSD", Timestamp: at})

	entries, err := j.Events("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Event != events.EventOrderPlaced || entries[0].Price != "100.5" || entries[0].Volume != "2" {
		t.Errorf("placed entry = %+v", entries[0])
	}
	var race events.CancelRace
	if err := json.Unmarshal([]byte(entries[1].Detail), &race); err != nil || race.Attempt != 1 {
		t.Errorf("race detail = %q (%v)", entries[1].Detail, err)
	}
	if !entries[2].At.Equal(at) {
		t.Errorf("done at = %v, want %v", entries[2].At, at)
	}
}

func TestJournalRunsNewestFirst(t *testing.T) {
	j := openTestJournal(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, run := range []string{"a", "b", "a"} {
		ev := events.Event{Type: events.EventOrderHeld, RunID: run, Pair: "ETHUSD", Timestamp: base.Add(time.Duration(i) * time.Minute),
			Payload: events.OrderHeld{TxID: "T"}}
		if err := j.Record(ev); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := j.Runs(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].RunID != "a" || runs[0].Events != 2 || runs[1].RunID != "b" {
		t.Fatalf("runs = %+v", runs)
	}
	if !runs[0].Started.Equal(base) {
		t.Errorf("run a started %v, want %v", runs[0].Started, base)
	}
}
