package engine

import "testing"

func TestEventBusFiltersByType(t *testing.T) {
	bus := NewEventBus()

	var all, filtered []EventType
	bus.Subscribe(func(evt Event) { all = append(all, evt.Type) })
	bus.Subscribe(func(evt Event) { filtered = append(filtered, evt.Type) }, EventLogSubmitted)

	bus.Emit(Event{Type: EventSyncCompleted})
	bus.Emit(Event{Type: EventLogSubmitted})

	if len(all) != 2 {
		t.Errorf("unfiltered listener saw %d events, want 2", len(all))
	}
	if len(filtered) != 1 || filtered[0] != EventLogSubmitted {
		t.Errorf("filtered listener saw %v", filtered)
	}
}

func TestEventBusCancelStopsDelivery(t *testing.T) {
	bus := NewEventBus()

	var count int
	cancel := bus.Subscribe(func(Event) { count++ }, EventSyncCompleted)

	bus.Emit(Event{Type: EventSyncCompleted})
	cancel()
	cancel() // repeated cancel is a no-op
	bus.Emit(Event{Type: EventSyncCompleted})

	if count != 1 {
		t.Errorf("listener fired %d times, want 1", count)
	}
}

func TestEventBusStampsTimestamp(t *testing.T) {
	bus := NewEventBus()

	var got Event
	bus.Subscribe(func(evt Event) { got = evt })
	bus.Emit(Event{Type: EventSyncStarted})

	if got.Timestamp.IsZero() {
		t.Error("emitted event should carry a timestamp")
	}
}
