package events

import (
	"sync"
	"testing"
)

func TestPublishNotifiesSubscribers(t *testing.T) {
	bus := NewBus(16)

	var mu sync.Mutex
	var received []Event
	unsubscribe := bus.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})

	bus.Publish(Event{Type: EventWeekSelected, OccurrenceID: "occ-1"})
	bus.Publish(Event{Type: EventProductAdded, OccurrenceID: "occ-1"})

	mu.Lock()
	n := len(received)
	mu.Unlock()
	if n != 2 {
		t.Fatalf("received %d events, want 2", n)
	}

	unsubscribe()
	bus.Publish(Event{Type: EventProductRemoved})

	mu.Lock()
	n = len(received)
	mu.Unlock()
	if n != 2 {
		t.Fatalf("received %d events after unsubscribe, want 2", n)
	}
	if bus.Published() != 3 {
		t.Fatalf("Published() = %d, want 3", bus.Published())
	}
}

func TestPublishFillsDefaults(t *testing.T) {
	bus := NewBus(4)
	var got Event
	bus.Subscribe(func(e Event) { got = e })

	bus.Publish(Event{Type: EventCartCreated})
	if got.ID == "" {
		t.Fatal("event id must be assigned")
	}
	if got.Timestamp.IsZero() {
		t.Fatal("event timestamp must be assigned")
	}
	if got.Severity != SeverityInfo {
		t.Fatalf("severity = %q, want info default", got.Severity)
	}
}

func TestSubscribeFiltered(t *testing.T) {
	bus := NewBus(16)
	var errs int
	bus.SubscribeFiltered(
		func(e Event) bool { return e.Severity == SeverityError },
		func(Event) { errs++ },
	)

	bus.Publish(Event{Type: EventProductAdded})
	bus.Publish(Event{Type: EventMutationFailed, Severity: SeverityError})

	if errs != 1 {
		t.Fatalf("filtered handler saw %d events, want 1", errs)
	}
}

func TestRecentNewestFirstWithWrap(t *testing.T) {
	bus := NewBus(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		bus.Publish(Event{Type: EventWeekSelected, OccurrenceID: id})
	}

	recent := bus.Recent(10)
	if len(recent) != 3 {
		t.Fatalf("Recent returned %d events, want ring size 3", len(recent))
	}
	want := []string{"d", "c", "b"}
	for i, e := range recent {
		if e.OccurrenceID != want[i] {
			t.Fatalf("recent[%d] = %s, want %s", i, e.OccurrenceID, want[i])
		}
	}
}

func TestRecentByType(t *testing.T) {
	bus := NewBus(16)
	bus.Publish(Event{Type: EventWeekSelected, OccurrenceID: "occ-1"})
	bus.Publish(Event{Type: EventProductAdded, OccurrenceID: "occ-1"})
	bus.Publish(Event{Type: EventWeekSelected, OccurrenceID: "occ-2"})

	selected := bus.RecentByType(EventWeekSelected, 10)
	if len(selected) != 2 {
		t.Fatalf("RecentByType returned %d, want 2", len(selected))
	}
	if selected[0].OccurrenceID != "occ-2" {
		t.Fatalf("newest first: got %s", selected[0].OccurrenceID)
	}
}

func TestHandlerMayPublishFollowUp(t *testing.T) {
	bus := NewBus(16)
	done := false
	bus.Subscribe(func(e Event) {
		if e.Type == EventProductAdded && !done {
			done = true
			bus.Publish(Event{Type: EventValidStatusChanged})
		}
	})

	// Must not deadlock: notification happens outside the bus lock.
	bus.Publish(Event{Type: EventProductAdded})
	if bus.Published() != 2 {
		t.Fatalf("Published() = %d, want 2", bus.Published())
	}
}
